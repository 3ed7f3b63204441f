package carto

import (
	"image"
	"log/slog"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	regularOnce sync.Once
	regular     *opentype.Font
	regularErr  error
)

// face returns the label font at size points. Faces keep glyph caches and are
// owned by the map, so maps on different goroutines never share one.
func (m *Map) face(size float64) font.Face {
	regularOnce.Do(func() {
		regular, regularErr = opentype.Parse(goregular.TTF)
	})
	if regularErr != nil {
		return basicfont.Face7x13
	}
	if m.faces == nil {
		m.faces = map[float64]font.Face{}
	}
	if f, ok := m.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(regular, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	m.faces[size] = f
	return f
}

// loadImage returns the marker image at path, decoding it once per map.
// Unreadable files are logged once and yield nil.
func (m *Map) loadImage(logger *slog.Logger, path string) image.Image {
	if path == "" {
		return nil
	}
	if img, ok := m.images[path]; ok {
		return img
	}
	img, err := gg.LoadImage(path)
	if err != nil {
		logger.Warn("Could not load marker image, drawing a plain marker.", "file", path, "error", err)
		img = nil
	}
	m.images[path] = img
	return img
}
