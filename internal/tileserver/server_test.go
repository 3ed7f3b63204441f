package tileserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoexport/internal/tilecache"
)

const squareStyle = `
map {
  srs              = "+proj=merc +a=6378137 +b=6378137 +units=m +no_defs"
  background_color = "#0000ff"
}

style "fill" {
  rule {
    polygon { fill = "#ff0000" }
  }
}

layer "square" {
  srs    = "+proj=longlat +datum=WGS84 +no_defs"
  styles = ["fill"]
  datasource {
    type   = "geojson"
    inline = <<EOT
{"type":"Polygon","coordinates":[[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]}
EOT
  }
}
`

var (
	red  = color.RGBA{255, 0, 0, 255}
	blue = color.RGBA{0, 0, 255, 255}
)

func newServer(t *testing.T, cache *tilecache.Cache) *Server {
	t.Helper()
	mapfile := filepath.Join(t.TempDir(), "square.hcl")
	require.NoError(t, os.WriteFile(mapfile, []byte(squareStyle), 0o600))

	pool, err := NewPool(context.Background(), mapfile, 2)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return New(context.Background(), mapfile, pool, cache)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodePNG(t *testing.T, rec *httptest.ResponseRecorder) *image.RGBA {
	t.Helper()
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	rgba := image.NewRGBA(img.Bounds())
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba
}

func TestServer_Ping(t *testing.T) {
	rec := get(t, newServer(t, nil), "/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeJSON(t, rec).Status)
}

func TestServer_Metadata(t *testing.T) {
	rec := get(t, newServer(t, nil), "/metadata")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeJSON(t, rec)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"square"}, data["layers"])
	assert.Equal(t, 2.0, data["workers"])
	assert.NotContains(t, data, "cache")
}

func TestServer_WorldTile(t *testing.T) {
	rec := get(t, newServer(t, nil), "/0/0/0.png")
	require.Equal(t, http.StatusOK, rec.Code)

	img := decodePNG(t, rec)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, red, img.RGBAAt(128, 128))
	assert.Equal(t, blue, img.RGBAAt(10, 10))
}

func TestServer_QuadrantTile(t *testing.T) {
	rec := get(t, newServer(t, nil), "/1/1/0.png")
	require.Equal(t, http.StatusOK, rec.Code)

	img := decodePNG(t, rec)
	assert.Equal(t, red, img.RGBAAt(3, 252), "square corner sits at the tile's bottom left")
	assert.Equal(t, blue, img.RGBAAt(128, 128))
}

func TestServer_TileOutOfRange(t *testing.T) {
	s := newServer(t, nil)
	for _, target := range []string{"/1/2/0.png", "/1/0/2.png", "/23/0/0.png"} {
		rec := get(t, s, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "error", decodeJSON(t, rec).Status, target)
	}
}

func TestServer_TileCache(t *testing.T) {
	cache, err := tilecache.Open(context.Background(), filepath.Join(t.TempDir(), "c.mbtiles"), nil)
	require.NoError(t, err)
	defer cache.Close()
	s := newServer(t, cache)

	first := get(t, s, "/0/0/0.png")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))

	second := get(t, s, "/0/0/0.png")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	_, ok, err := cache.Get(context.Background(), tilecache.Coord{})
	require.NoError(t, err)
	assert.True(t, ok)

	meta := decodeJSON(t, get(t, s, "/metadata")).Data.(map[string]any)
	assert.Contains(t, meta, "cache")
}

func TestServer_Render(t *testing.T) {
	rec := get(t, newServer(t, nil), "/render.png?bbox=-20,-20,20,20&zoom=1")
	require.Equal(t, http.StatusOK, rec.Code)

	img := decodePNG(t, rec)
	assert.Equal(t, 500, img.Bounds().Dx())
	assert.Equal(t, 1000, img.Bounds().Dy())
	assert.Equal(t, red, img.RGBAAt(250, 500))
}

func TestServer_RenderZoomLimit(t *testing.T) {
	s := newServer(t, nil)

	rec := get(t, s, "/render.png?bbox=-20,-20,20,20")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, decodePNG(t, rec).Bounds().Dx())

	rec = get(t, s, fmt.Sprintf("/render.png?bbox=-20,-20,20,20&zoom=%d", MaxRenderZoom+1))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", decodeJSON(t, rec).Status)
}

func TestServer_RenderBadRequest(t *testing.T) {
	s := newServer(t, nil)
	for _, target := range []string{
		"/render.png",
		"/render.png?bbox=1,2,3",
		"/render.png?bbox=0,0,1,1&zoom=19",
		"/render.png?bbox=0,0,1,1&zoom=18",
		"/render.png?bbox=0,0,1,1&zoom=5",
		"/render.png?bbox=0,0,1,1&zoom=0",
		"/render.png?bbox=0,0,1,1&zoom=x",
	} {
		rec := get(t, s, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestServer_NotFound(t *testing.T) {
	rec := get(t, newServer(t, nil), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", decodeJSON(t, rec).Status)
}

func TestPool_RenderAfterClose(t *testing.T) {
	mapfile := filepath.Join(t.TempDir(), "square.hcl")
	require.NoError(t, os.WriteFile(mapfile, []byte(squareStyle), 0o600))
	pool, err := NewPool(context.Background(), mapfile, 1)
	require.NoError(t, err)
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Render(context.Background(), Request{Width: 1, Height: 1})
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestNewPool_MissingMapfile(t *testing.T) {
	_, err := NewPool(context.Background(), filepath.Join(t.TempDir(), "nope.xml"), 2)
	require.Error(t, err)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()
	cancel()
	require.NoError(t, <-done)
}
