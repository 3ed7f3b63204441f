package tui

import (
	"fmt"
	"strconv"

	table "github.com/charmbracelet/bubbles/table"
)

// refreshStats rebuilds the layer statistics table.
func (m *Model) refreshStats() {
	if len(m.layers) == 0 {
		m.showStats = false
		m.status = "no layers"
		return
	}
	nameW := len("layer")
	for _, l := range m.layers {
		nameW = max(nameW, len(l.name))
	}
	cols := []table.Column{
		{Title: "layer", Width: min(nameW+1, 24)},
		{Title: "features", Width: 8},
		{Title: "points", Width: 7},
		{Title: "lines", Width: 7},
		{Title: "polygons", Width: 8},
		{Title: "shown", Width: 6},
	}
	rows := make([]table.Row, 0, len(m.layers))
	for _, l := range m.layers {
		pts, ls, polys := l.counts()
		rows = append(rows, table.Row{
			l.name,
			strconv.Itoa(len(l.features)),
			strconv.Itoa(pts),
			strconv.Itoa(ls),
			strconv.Itoa(polys),
			fmt.Sprintf("%v", l.shown()),
		})
	}
	// clear rows first so the column count never mismatches
	m.tbl.SetRows(nil)
	m.tbl.SetColumns(cols)
	m.tbl.SetRows(rows)
}
