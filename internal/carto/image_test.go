package carto

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_ViewClipsToBounds(t *testing.T) {
	img := NewImage(40, 20)
	assert.Equal(t, 40, img.Width())
	assert.Equal(t, 20, img.Height())

	full := img.View(0, 0, 40, 20)
	assert.Equal(t, 40, full.Width())
	assert.Equal(t, 20, full.Height())

	part := img.View(30, 10, 40, 40)
	assert.Equal(t, 10, part.Width())
	assert.Equal(t, 10, part.Height())
}

func TestView_Encode(t *testing.T) {
	img := NewImage(8, 4)
	img.RGBA().Set(1, 1, color.RGBA{255, 0, 0, 255})
	v := img.View(0, 0, 8, 4)

	for _, format := range []string{"png", "PNG32", "jpeg", "jpg", "jpeg70"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, v.Encode(&buf, format))
			cfg, _, err := image.DecodeConfig(&buf)
			require.NoError(t, err)
			assert.Equal(t, 8, cfg.Width)
			assert.Equal(t, 4, cfg.Height)
		})
	}

	for _, format := range []string{"tiff", "jpeg0", "jpegxl", ""} {
		require.ErrorIs(t, v.Encode(&bytes.Buffer{}, format), ErrUnsupportedFormat, format)
	}
}

func TestView_Save(t *testing.T) {
	dir := t.TempDir()
	img := NewImage(500, 1000)
	img.RGBA().Set(0, 0, color.RGBA{0, 255, 0, 255})

	path := filepath.Join(dir, "out.png")
	require.NoError(t, img.View(0, 0, 500, 1000).Save(path, "png"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 500, 1000), got.Bounds())
	r, g, _, _ := got.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), g)

	require.NoError(t, img.View(0, 0, 10, 10).Save(filepath.Join(dir, "out.jpg"), "jpeg"))
	require.ErrorIs(t, img.View(0, 0, 10, 10).Save(filepath.Join(dir, "out.gif"), "gif"), ErrUnsupportedFormat)
	_, err = os.Stat(filepath.Join(dir, "out.gif"))
	assert.True(t, os.IsNotExist(err))

	require.Error(t, img.View(0, 0, 10, 10).Save(filepath.Join(dir, "no", "such", "dir.png"), "png"))
}
