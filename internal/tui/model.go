// Package tui previews a loaded map in the terminal with braille graphics.
package tui

import (
	"context"
	"fmt"

	list "github.com/charmbracelet/bubbles/list"
	table "github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"geoexport/internal/carto"
)

type Model struct {
	ctx   context.Context
	cmap  *carto.Map
	title string

	width  int
	height int

	showSidebar bool
	helpVisible bool

	// requested view in map coordinates; the map grows it to the canvas aspect
	view carto.Box

	status string

	// layer sidebar
	l      list.Model
	layers []layerState

	// inspect popup
	inspectPopup string

	// hover state
	hovering    bool
	hoverCellX  int
	hoverCellY  int
	hoverMicX   int
	hoverMicY   int
	hoverHasGeo bool
	hoverLon    float64
	hoverLat    float64

	// layer statistics table
	showStats bool
	tbl       table.Model
}

// New previews cm, which must be loaded and framed. The model does not
// close cm.
func New(ctx context.Context, cm *carto.Map, title string) Model {
	m := Model{
		ctx:         ctx,
		cmap:        cm,
		title:       title,
		helpVisible: true,
		view:        cm.Extent(),
		status:      fmt.Sprintf("%s  %d layers", title, len(cm.Layers())),
	}
	d := list.NewDefaultDelegate()
	m.l = list.New(nil, d, 0, 0)
	m.l.Title = "Layers"
	m.l.SetShowHelp(false)
	m.l.SetShowStatusBar(false)
	m.l.SetFilteringEnabled(true)

	m.tbl = table.New(table.WithFocused(true))
	m.tbl.SetHeight(12)
	for _, name := range cm.Layers() {
		m.layers = append(m.layers, layerState{name: name, enabled: true})
	}
	return m
}

func (m Model) Init() tea.Cmd { return nil }

// Run shows the preview until the user quits or ctx is cancelled.
func Run(ctx context.Context, cm *carto.Map, title string) error {
	p := tea.NewProgram(New(ctx, cm, title),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
