package style

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoexport/internal/geom"
)

const sampleXML = `<?xml version="1.0" encoding="utf-8"?>
<Map srs="+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs +over" background-color="#b5d0d0" buffer-size="128">
  <FontSet name="book-fonts"><Font face-name="DejaVu Sans Book"/></FontSet>
  <Datasource name="osm">
    <Parameter name="type">postgis</Parameter>
    <Parameter name="dbname">gis</Parameter>
    <Parameter name="user">render</Parameter>
  </Datasource>
  <Style name="water">
    <Rule>
      <Filter>[natural] = 'water'</Filter>
      <MaxScaleDenominator>25000000</MaxScaleDenominator>
      <PolygonSymbolizer fill="#99b3cc" fill-opacity="0.8"/>
      <LineSymbolizer>
        <CssParameter name="stroke">steelblue</CssParameter>
        <CssParameter name="stroke-width">0.5</CssParameter>
        <CssParameter name="stroke-dasharray">4,2</CssParameter>
        <CssParameter name="stroke-linecap">round</CssParameter>
      </LineSymbolizer>
      <TextSymbolizer size="9" fill="#334" halo-radius="1" dy="-4" allow-overlap="true">[name]</TextSymbolizer>
    </Rule>
    <Rule>
      <ElseFilter/>
      <RasterSymbolizer/>
      <TextSymbolizer name="ref" face-name="DejaVu Sans Book"/>
    </Rule>
  </Style>
  <Style name="places" filter-mode="first">
    <Rule>
      <MarkersSymbolizer fill="red" width="6"/>
      <PointSymbolizer file="icons/pin.png"/>
    </Rule>
  </Style>
  <Layer name="world" status="on" srs="+proj=longlat +datum=WGS84 +no_defs">
    <StyleName>water</StyleName>
    <Datasource>
      <Parameter name="type">geojson</Parameter>
      <Parameter name="file">world.geojson</Parameter>
    </Datasource>
  </Layer>
  <Layer name="roads" status="off" minzoom="1000" maxzoom="500000">
    <StyleName>water</StyleName>
    <StyleName>places</StyleName>
    <Datasource base="osm">
      <Parameter name="table">planet_osm_line</Parameter>
      <Parameter name="user">override</Parameter>
    </Datasource>
  </Layer>
</Map>`

func TestParseXML(t *testing.T) {
	m, err := ParseXML([]byte(sampleXML), "/srv/styles")
	require.NoError(t, err)

	assert.Contains(t, m.SRS, "+proj=merc")
	assert.Equal(t, color.NRGBA{0xb5, 0xd0, 0xd0, 0xff}, m.Background)
	assert.Equal(t, 128, m.BufferSize)
	assert.Equal(t, []string{"water: RasterSymbolizer"}, m.Unsupported)

	wantLayers := []*Layer{
		{
			Name:       "world",
			SRS:        "+proj=longlat +datum=WGS84 +no_defs",
			Active:     true,
			StyleNames: []string{"water"},
			Datasource: map[string]string{"type": "geojson", "file": "world.geojson"},
		},
		{
			Name:       "roads",
			SRS:        m.SRS,
			Active:     false,
			StyleNames: []string{"water", "places"},
			MinScale:   1000,
			MaxScale:   500000,
			Datasource: map[string]string{"type": "postgis", "dbname": "gis", "user": "override", "table": "planet_osm_line"},
		},
	}
	if diff := cmp.Diff(wantLayers, m.Layers); diff != "" {
		t.Errorf("layers mismatch (-want +got):\n%s", diff)
	}

	water := m.Styles["water"]
	require.NotNil(t, water)
	require.Len(t, water.Rules, 2)

	r := water.Rules[0]
	assert.Equal(t, 25000000.0, r.MaxScale)
	assert.True(t, r.Filter.Match(map[string]any{"natural": "water"}, geom.KindPolygon))
	require.Len(t, r.Symbolizers, 3)

	poly := r.Symbolizers[0].(*PolygonSymbolizer)
	assert.Equal(t, color.NRGBA{0x99, 0xb3, 0xcc, 0xff}, poly.Fill)
	assert.Equal(t, 0.8, poly.Opacity)

	line := r.Symbolizers[1].(*LineSymbolizer)
	assert.Equal(t, color.NRGBA{70, 130, 180, 255}, line.Stroke)
	assert.Equal(t, 0.5, line.Width)
	assert.Equal(t, []float64{4, 2}, line.Dash)
	assert.Equal(t, "round", line.Cap)
	assert.Equal(t, "miter", line.Join)

	text := r.Symbolizers[2].(*TextSymbolizer)
	assert.Equal(t, 9.0, text.Size)
	assert.Equal(t, -4.0, text.DY)
	assert.True(t, text.AllowOverlap)
	assert.Equal(t, "Seine", text.Name.Text(map[string]any{"name": "Seine"}, geom.KindLineString))

	elseRule := water.Rules[1]
	assert.True(t, elseRule.ElseFilter)
	require.Len(t, elseRule.Symbolizers, 1)
	assert.Equal(t, "A7", elseRule.Symbolizers[0].(*TextSymbolizer).Name.Text(map[string]any{"ref": "A7"}, geom.KindLineString))

	places := m.Styles["places"]
	assert.Equal(t, FilterFirst, places.FilterMode)
	marker := places.Rules[0].Symbolizers[0].(*PointSymbolizer)
	assert.Equal(t, 6.0, marker.Width)
	assert.Equal(t, 6.0, marker.Height)
	assert.Empty(t, marker.File)
	point := places.Rules[0].Symbolizers[1].(*PointSymbolizer)
	assert.Equal(t, filepath.Join("/srv/styles", "icons/pin.png"), point.File)
}

func TestParseXML_Errors(t *testing.T) {
	testCases := map[string]string{
		"not a map":          `<Styles/>`,
		"unknown element":    `<Map><Stylez/></Map>`,
		"unknown symbolizer": `<Map><Style name="s"><Rule><FooSymbolizer/></Rule></Style></Map>`,
		"bad filter":         `<Map><Style name="s"><Rule><Filter>[a] ~ 1</Filter></Rule></Style></Map>`,
		"bad colour":         `<Map><Style name="s"><Rule><PolygonSymbolizer fill="#12"/></Rule></Style></Map>`,
		"unknown base":       `<Map><Layer name="l"><Datasource base="nope"/></Layer></Map>`,
		"unnamed style":      `<Map><Style><Rule/></Style></Map>`,
		"bad buffer":         `<Map buffer-size="lots"/>`,
		"text without name":  `<Map><Style name="s"><Rule><TextSymbolizer/></Rule></Style></Map>`,
	}
	for name, doc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseXML([]byte(doc), "")
			require.Error(t, err)
		})
	}
}

func TestLoad_XMLDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<Map><Layer name="l"/></Map>`), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSRS, m.SRS)
	assert.Equal(t, color.NRGBA{}, m.Background)
	assert.Equal(t, dir, m.Dir)
	require.Len(t, m.Layers, 1)
	assert.Equal(t, DefaultSRS, m.Layers[0].SRS)
	assert.True(t, m.Layers[0].Active)

	_, err = Load(filepath.Join(dir, "missing.xml"))
	require.Error(t, err)
}
