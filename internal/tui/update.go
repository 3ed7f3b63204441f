package tui

import (
	"fmt"
	"sort"
	"strings"

	list "github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"geoexport/internal/geom"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeSidebar()
		m.reframe()
	case tea.KeyMsg:
		// a filtering list gets every key
		if m.showSidebar && m.l.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.l, cmd = m.l.Update(msg)
			return m, cmd
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "+", "=":
			m.zoom(zoomStep)
		case "-", "_":
			m.zoom(1 / zoomStep)
		case "up":
			// the sidebar list moves its cursor instead
			if !m.showSidebar {
				m.pan(0, panStep)
			}
		case "down":
			if !m.showSidebar {
				m.pan(0, -panStep)
			}
		case "left":
			m.pan(-panStep, 0)
		case "right":
			m.pan(panStep, 0)
		case "tab":
			m.showSidebar = !m.showSidebar
			m.resizeSidebar()
			m.reframe()
		case "enter":
			if m.showSidebar {
				m.toggleSelected()
			}
			return m, nil
		case "h":
			m.helpVisible = !m.helpVisible
		case "a":
			m.showStats = !m.showStats
			if m.showStats {
				m.refreshStats()
			}
		case "i":
			m.inspect()
		case "esc":
			m.inspectPopup = ""
		}
	case tea.MouseMsg:
		m.hover(msg.X, msg.Y)
	}
	if m.showSidebar {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resizeSidebar() {
	if m.showSidebar {
		_, _, _, h := m.canvas()
		m.l.SetSize(sidebarWidth-2, h-2)
	}
}

// hover tracks the pointer over the canvas: the lon/lat readout and the
// nearest shown vertex.
func (m *Model) hover(x, y int) {
	ox, oy, w, h := m.canvas()
	if x < ox || x >= ox+w || y < oy || y >= oy+h {
		m.hovering, m.hoverHasGeo = false, false
		return
	}
	m.hovering = true
	m.hoverCellX, m.hoverCellY = x-ox, y-oy
	m.hoverLon, m.hoverLat, m.hoverHasGeo = m.cellLonLat(m.hoverCellX, m.hoverCellY)

	mx, my := m.hoverCellX*2, m.hoverCellY*4
	m.hoverMicX, m.hoverMicY = mx, my
	if _, _, at, ok := m.nearest(mx, my); ok {
		m.hoverMicX, m.hoverMicY = round(at[0]), round(at[1])
	}
}

// inspect describes the feature nearest to the pointer, or to the canvas
// centre when the pointer is elsewhere.
func (m *Model) inspect() {
	_, _, w, h := m.canvas()
	mx, my := w, h*2
	if m.hovering {
		mx, my = m.hoverCellX*2, m.hoverCellY*4
	}
	li, fi, _, ok := m.nearest(mx, my)
	if !ok {
		m.inspectPopup = "no feature nearby"
		m.status = m.inspectPopup
		return
	}
	m.inspectPopup = describe(m.layers[li].name, m.layers[li].features[fi])
	m.status = "inspect: " + m.layers[li].name
}

func describe(layer string, f geom.Feature) string {
	lines := []string{
		"layer: " + layer,
		fmt.Sprintf("feature: %d", f.ID),
		"geometry: " + geom.KindOf(f.Geometry).String(),
	}
	keys := make([]string, 0, len(f.Props))
	for k := range f.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, f.Props[k]))
	}
	return strings.Join(lines, "\n")
}
