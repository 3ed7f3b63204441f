package datasource

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const points = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"west"},"geometry":{"type":"Point","coordinates":[-10,0]}},
	{"type":"Feature","properties":{"name":"east"},"geometry":{"type":"Point","coordinates":[10,0]}},
	{"type":"Feature","properties":{"name":"road"},"geometry":{"type":"LineString","coordinates":[[-20,-1],[20,1]]}}
]}`

func names(t *testing.T, ds Datasource, box orb.Bound) []string {
	t.Helper()
	fs, err := ds.Features(context.Background(), Query{Box: box})
	require.NoError(t, err)
	var out []string
	for _, f := range fs {
		out = append(out, f.Props["name"].(string))
	}
	return out
}

func TestNew_InlineGeoJSON(t *testing.T) {
	ds, err := New(context.Background(), Params{"type": "geojson", "inline": points}, "")
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, orb.Bound{Min: orb.Point{-20, -1}, Max: orb.Point{20, 1}}, ds.Envelope())
	assert.Equal(t, []string{"west", "road"}, names(t, ds, orb.Bound{Min: orb.Point{-15, -5}, Max: orb.Point{-5, 5}}))
	assert.Equal(t, []string{"west", "east", "road"}, names(t, ds, ds.Envelope()))
	assert.Empty(t, names(t, ds, orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{60, 60}}))
}

func TestNew_FileResolution(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "pts.geojson"), []byte(points), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "pts.csv"), []byte("name,lat,lon\nx,1,2\n"), 0o600))

	ctx := context.Background()
	testCases := []struct {
		name   string
		params Params
		count  int
	}{
		{name: "relative to stylesheet", params: Params{"type": "geojson", "file": "data/pts.geojson"}, count: 3},
		{name: "base parameter", params: Params{"type": "geojson", "file": "pts.geojson", "base": "data"}, count: 3},
		{name: "absolute", params: Params{"type": "csv", "file": filepath.Join(dir, "data", "pts.csv")}, count: 1},
		{name: "ogr by extension", params: Params{"type": "ogr", "file": "data/pts.csv"}, count: 1},
		{name: "inline wkt", params: Params{"type": "wkt", "inline": "POINT(1 1)\nPOINT(2 2)"}, count: 2},
		{name: "inline csv", params: Params{"type": "csv", "inline": "lat,lon\n1,1\n"}, count: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ds, err := New(ctx, tc.params, dir)
			require.NoError(t, err)
			fs, err := ds.Features(ctx, Query{Box: orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}})
			require.NoError(t, err)
			assert.Len(t, fs, tc.count)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Params{"type": "shape", "file": "x.shp"}, "")
	require.ErrorIs(t, err, ErrUnknownType)
	require.ErrorContains(t, err, `"shape"`)

	_, err = New(ctx, Params{}, "")
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = New(ctx, Params{"type": "geojson"}, "")
	require.ErrorContains(t, err, "missing file")

	_, err = New(ctx, Params{"type": "kml", "file": "nope.kml"}, t.TempDir())
	require.Error(t, err)

	_, err = New(ctx, Params{"type": "postgis"}, "")
	require.ErrorContains(t, err, "missing table")
}

func TestMemory_Cancelled(t *testing.T) {
	ds, err := New(context.Background(), Params{"type": "geojson", "inline": points}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ds.Features(ctx, Query{Box: ds.Envelope()})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE "my places" (id INTEGER, name TEXT, geom BLOB)`)
	require.NoError(t, err)

	blob, err := wkb.Marshal(orb.Point{2.35, 48.85})
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "my places" VALUES (1, 'Paris', ?), (2, 'Nowhere', NULL), (3, 'Path', 'LINESTRING(0 0,1 1)')`, blob)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ds, err := New(context.Background(), Params{"type": "sqlite", "file": path, "table": "my places"}, "")
	require.NoError(t, err)
	defer ds.Close()

	fs, err := ds.Features(context.Background(), Query{Box: orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}})
	require.NoError(t, err)
	require.Len(t, fs, 2, "rows without geometry are skipped")
	assert.Equal(t, orb.Point{2.35, 48.85}, fs[0].Geometry)
	assert.Equal(t, "Paris", fs[0].Props["name"])
	assert.EqualValues(t, 1, fs[0].Props["id"])
	assert.NotContains(t, fs[0].Props, "geom")
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, fs[1].Geometry)

	_, err = OpenSQLite(context.Background(), path, "my places", "nope")
	require.ErrorContains(t, err, "no geometry column")

	_, err = OpenSQLite(context.Background(), path, "", "")
	require.ErrorContains(t, err, "missing table")
}

func TestPostGISQueries(t *testing.T) {
	assert.Equal(t,
		`dbname='gis' host='localhost' password='it\'s' user='render'`,
		connString(Params{"host": "localhost", "dbname": "gis", "user": "render", "password": "it's", "table": "x"}))

	p := &PostGIS{table: "planet_osm_line", geomField: "way", srid: 3857}
	assert.Equal(t,
		`SELECT ST_AsBinary("way") AS __geometry__, * FROM "planet_osm_line" WHERE "way" && ST_MakeEnvelope($1, $2, $3, $4, 3857)`,
		p.featureQuery(Query{}))

	p.table = "(SELECT way, name FROM roads WHERE highway IS NOT NULL) AS r"
	assert.Contains(t, p.featureQuery(Query{}), "FROM (SELECT way, name FROM roads WHERE highway IS NOT NULL) AS r WHERE")

	b, err := parseExtent("-20037508,-20037508,20037508,20037508")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-20037508, -20037508}, Max: orb.Point{20037508, 20037508}}, b)

	_, err = parseExtent("1,2,3")
	require.Error(t, err)
}

func TestPostGISQueries_SchemaQualifiedTable(t *testing.T) {
	p := &PostGIS{table: "public.planet_osm_polygon", geomField: "way", srid: 3857}
	assert.Contains(t, p.featureQuery(Query{}), `FROM "public"."planet_osm_polygon" WHERE`)
	assert.Contains(t, p.relation(p.worldEnvelope(), Query{}), `"public"."planet_osm_polygon"`)
}

func TestPostGISQueries_Tokens(t *testing.T) {
	p := &PostGIS{
		table:     "(SELECT way, name FROM planet_osm_line WHERE way && !bbox! AND !scale_denominator! < 50000 AND ST_Length(way) > !pixel_width!) AS p",
		geomField: "way",
		srid:      3857,
	}

	q := p.featureQuery(Query{ScaleDenominator: 25000, PixelWidth: 9.5})
	assert.NotContains(t, q, "!")
	assert.Contains(t, q, "WHERE way && ST_MakeEnvelope($1, $2, $3, $4, 3857) AND 25000 < 50000 AND ST_Length(way) > 9.5) AS p WHERE")

	extent := p.relation(p.worldEnvelope(), Query{})
	assert.Contains(t, extent, "way && ST_MakeEnvelope(-1e300, -1e300, 1e300, 1e300, 3857) AND 0 < 50000")
}
