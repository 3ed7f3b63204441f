package tui

import (
	"fmt"

	list "github.com/charmbracelet/bubbles/list"

	"geoexport/internal/geom"
)

// layerState is one stylesheet layer as the preview sees it.
type layerState struct {
	name     string
	enabled  bool // toggled by the user
	visible  bool // within the layer's scale range
	features []geom.Feature
}

func (l layerState) shown() bool { return l.enabled && l.visible }

func (l layerState) counts() (points, lines, polygons int) {
	return geom.Collection{Features: l.features}.Counts()
}

type layerItem struct {
	index int
	layer layerState
}

func (i layerItem) Title() string {
	mark := "●"
	if !i.layer.enabled {
		mark = "○"
	}
	return mark + " " + i.layer.name
}

func (i layerItem) Description() string {
	if !i.layer.visible {
		return "hidden at this scale"
	}
	pts, ls, polys := i.layer.counts()
	return fmt.Sprintf("pts=%d ls=%d poly=%d", pts, ls, polys)
}

func (i layerItem) FilterValue() string { return i.layer.name }

// refreshSnapshot queries the map for the current extent and updates layer
// features and the sidebar.
func (m *Model) refreshSnapshot() {
	snap, err := m.cmap.Snapshot(m.ctx)
	if err != nil {
		m.status = "query error: " + err.Error()
		return
	}
	byName := make(map[string]int, len(snap))
	for i, lf := range snap {
		byName[lf.Name] = i
	}
	for i := range m.layers {
		j, ok := byName[m.layers[i].name]
		if !ok {
			m.layers[i].visible, m.layers[i].features = false, nil
			continue
		}
		m.layers[i].visible = snap[j].Visible
		m.layers[i].features = snap[j].Features
	}
	m.refreshList()
	if m.showStats {
		m.refreshStats()
	}
}

func (m *Model) refreshList() {
	items := make([]list.Item, len(m.layers))
	for i, l := range m.layers {
		items[i] = layerItem{index: i, layer: l}
	}
	m.l.SetItems(items)
}

// toggleSelected flips the selected sidebar layer on or off.
func (m *Model) toggleSelected() {
	it, ok := m.l.SelectedItem().(layerItem)
	if !ok {
		return
	}
	l := &m.layers[it.index]
	l.enabled = !l.enabled
	if l.enabled {
		m.status = l.name + ": on"
	} else {
		m.status = l.name + ": off"
	}
	m.refreshList()
	if m.showStats {
		m.refreshStats()
	}
}
