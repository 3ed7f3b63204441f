package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoexport/internal/carto"
	"geoexport/internal/style"
)

const previewStyle = `
style "any" {
  rule {
    polygon { fill = "#ff0000" }
    point {}
  }
}

layer "square" {
  styles = ["any"]
  datasource {
    type   = "geojson"
    inline = <<EOT
{"type":"Polygon","coordinates":[[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]}
EOT
  }
}

layer "pins" {
  styles = ["any"]
  datasource {
    type   = "geojson"
    inline = <<EOT
{"type":"Feature","properties":{"name":"pin","rank":2},"geometry":{"type":"Point","coordinates":[5,5]}}
EOT
  }
}
`

func newModel(t *testing.T) Model {
	t.Helper()
	sm, err := style.ParseHCL([]byte(previewStyle), "preview.hcl", t.TempDir())
	require.NoError(t, err)

	cm := carto.NewMap(10, 10)
	require.NoError(t, cm.Apply(context.Background(), sm))
	t.Cleanup(func() { cm.Close() })
	cm.ZoomToBox(carto.NewBox(-20, -20, 20, 20))

	return update(t, New(context.Background(), cm, "preview.hcl"), tea.WindowSizeMsg{Width: 80, Height: 24})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_ResizeFramesAndSnapshots(t *testing.T) {
	m := newModel(t)

	assert.Equal(t, 160, m.cmap.Width())
	assert.Equal(t, 84, m.cmap.Height())
	require.Len(t, m.layers, 2)
	assert.Len(t, m.layers[0].features, 1)
	assert.Len(t, m.layers[1].features, 1)
	assert.True(t, m.layers[0].shown())

	view := m.View()
	assert.Contains(t, view, "preview.hcl")
	assert.Contains(t, view, "⣿", "the square interior is filled")
}

func TestModel_Zoom(t *testing.T) {
	m := newModel(t)
	before := m.view

	m = update(t, m, key("+"))
	assert.InDelta(t, before.Width()/zoomStep, m.view.Width(), 1e-9)
	assert.InDelta(t, before.Center().X, m.view.Center().X, 1e-6)
	assert.InDelta(t, before.Center().Y, m.view.Center().Y, 1e-6)
	assert.Contains(t, m.status, "scale 1:")

	m = update(t, m, key("-"))
	assert.InDelta(t, before.Width(), m.view.Width(), 1e-9)
}

func TestModel_Pan(t *testing.T) {
	m := newModel(t)
	before := m.view

	m = update(t, m, key("right"))
	assert.InDelta(t, before.MinX+panStep*before.Width(), m.view.MinX, 1e-9)

	m = update(t, m, key("up"))
	assert.InDelta(t, before.MinY+panStep*before.Height(), m.view.MinY, 1e-9)
}

func TestModel_SidebarTogglesLayer(t *testing.T) {
	m := newModel(t)

	m = update(t, m, key("tab"))
	require.True(t, m.showSidebar)
	assert.Equal(t, 160-2*(sidebarWidth+1), m.cmap.Width(), "the canvas shrinks by the sidebar")
	require.Len(t, m.l.Items(), 2)

	m = update(t, m, key("enter"))
	assert.False(t, m.layers[0].enabled)
	assert.False(t, m.layers[0].shown())
	assert.Equal(t, "square: off", m.status)

	m = update(t, m, key("enter"))
	assert.True(t, m.layers[0].enabled)
}

func TestModel_HoverReadsLonLat(t *testing.T) {
	m := newModel(t)

	m = update(t, m, tea.MouseMsg{X: 40, Y: 11, Action: tea.MouseActionMotion})
	require.True(t, m.hovering)
	require.True(t, m.hoverHasGeo)
	assert.InDelta(t, 0, m.hoverLon, 1)
	assert.InDelta(t, 0, m.hoverLat, 1)
	assert.Contains(t, m.View(), "lon=")

	m = update(t, m, tea.MouseMsg{X: 40, Y: 0, Action: tea.MouseActionMotion})
	assert.False(t, m.hovering, "the header is outside the canvas")
}

func TestModel_InspectNearestFeature(t *testing.T) {
	m := newModel(t)

	m = update(t, m, key("i"))
	assert.Contains(t, m.inspectPopup, "layer: pins")
	assert.Contains(t, m.inspectPopup, "name: pin")
	assert.Contains(t, m.inspectPopup, "geometry: point")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Empty(t, m.inspectPopup)
}

func TestModel_StatsTable(t *testing.T) {
	m := newModel(t)

	m = update(t, m, key("a"))
	require.True(t, m.showStats)
	rows := m.tbl.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "square", rows[0][0])
	assert.Equal(t, "1", rows[0][4])
	assert.Equal(t, "1", rows[1][2])
}

func TestModel_Quit(t *testing.T) {
	_, cmd := newModel(t).Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestBrailleBuf_Dots(t *testing.T) {
	b := newBrailleBuf(2, 1)
	b.setPixel(0, 0)
	b.setPixel(3, 3)
	b.setPixel(9, 9)
	assert.Equal(t, []string{"⠁⢀"}, b.toLines())
}

func TestBrailleBuf_FillLeavesHoles(t *testing.T) {
	b := newBrailleBuf(8, 4)
	outer := []orb.Point{{0, 0}, {16, 0}, {16, 16}, {0, 16}}
	hole := []orb.Point{{4, 4}, {12, 4}, {12, 12}, {4, 12}}
	b.fill([][]orb.Point{outer, hole})

	assert.True(t, b.isSet(1, 1))
	assert.True(t, b.isSet(14, 14))
	assert.False(t, b.isSet(8, 8))
}

func TestBrailleBuf_Line(t *testing.T) {
	b := newBrailleBuf(4, 1)
	b.line(0, 0, 7, 3)
	assert.True(t, b.isSet(0, 0))
	assert.True(t, b.isSet(7, 3))
}
