// Package tileserver serves rendered map images and XYZ tiles over HTTP.
package tileserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/maptile"

	"geoexport/internal/carto"
	"geoexport/internal/ctxlog"
	"geoexport/internal/export"
	"geoexport/internal/tilecache"
)

const (
	TileSize = 256
	// MaxTileZoom bounds the z path segment; deeper tiles are below any
	// useful scale denominator.
	MaxTileZoom = 22
	// MaxRenderZoom caps /render.png at 2000x4000 pixels (32 MB of RGBA)
	// per request; larger images belong to the export command.
	MaxRenderZoom = 4

	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 120 * time.Second
)

// Server routes requests to a render pool, optionally through a tile cache.
type Server struct {
	Router *mux.Router

	pool      *Pool
	cache     *tilecache.Cache
	mapfile   string
	layers    []string
	srs       string
	startTime time.Time
	logger    *slog.Logger
}

// New builds the router. cache may be nil.
func New(ctx context.Context, mapfile string, pool *Pool, cache *tilecache.Cache) *Server {
	s := &Server{
		pool:      pool,
		cache:     cache,
		mapfile:   mapfile,
		layers:    pool.Map().Layers(),
		srs:       pool.Map().SRS(),
		startTime: time.Now(),
		logger:    ctxlog.FromContext(ctx),
	}

	s.Router = mux.NewRouter()
	s.Router.Use(s.logRequests)
	s.Router.HandleFunc("/ping", s.PingHandler).Methods(http.MethodGet)
	s.Router.HandleFunc("/metadata", s.MetadataHandler).Methods(http.MethodGet)
	s.Router.HandleFunc("/render.png", s.RenderHandler).Methods(http.MethodGet)
	s.Router.HandleFunc("/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}.png", s.TileHandler).Methods(http.MethodGet)
	s.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "expecting /{z}/{x}/{y}.png or /render.png")
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// PingHandler is the health check.
func (s *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, "ok", map[string]any{"result": "pong"})
}

func (s *Server) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"mapfile":   s.mapfile,
		"srs":       s.srs,
		"layers":    s.layers,
		"workers":   s.pool.Workers(),
		"tile_size": TileSize,
		"uptime":    time.Since(s.startTime).Seconds(),
		"num_cores": runtime.NumCPU(),
	}
	if s.cache != nil {
		meta, err := s.cache.Metadata(r.Context())
		if err != nil {
			sendError(w, http.StatusInternalServerError, err.Error())
			return
		}
		data["cache"] = meta
	}
	sendJSON(w, http.StatusOK, "ok", data)
}

// RenderHandler renders ?bbox=w,s,e,n at ?zoom=z with the export's framing
// and image size. zoom defaults to 1 and may not exceed MaxRenderZoom.
func (s *Server) RenderHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bbox, err := export.ParseBBox(q.Get("bbox"))
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := export.Params{Mapfile: s.mapfile, Zoom: 1, BBox: bbox}
	if z := q.Get("zoom"); z != "" {
		if p.Zoom, err = strconv.Atoi(z); err != nil {
			sendError(w, http.StatusBadRequest, fmt.Sprintf("zoom %q is not an integer", z))
			return
		}
	}
	if err := p.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Zoom > MaxRenderZoom {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("zoom %d exceeds the server limit of %d", p.Zoom, MaxRenderZoom))
		return
	}
	extent, err := bbox.Project()
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	width, height := export.Dimensions(p.Zoom)
	data, err := s.pool.Render(r.Context(), Request{Width: width, Height: height, Extent: extent})
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendPNG(w, data)
}

// TileHandler serves a 256px XYZ tile, consulting the cache first.
func (s *Server) TileHandler(w http.ResponseWriter, r *http.Request) {
	tc, err := parseTile(mux.Vars(r))
	if err != nil {
		sendError(w, http.StatusNotFound, err.Error())
		return
	}
	ctx := r.Context()

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, tc)
		if err != nil {
			s.logger.Warn("Tile cache read failed.", "tile", tc.String(), "error", err)
		} else if ok {
			w.Header().Set("X-Cache", "hit")
			sendPNG(w, data)
			return
		}
	}

	extent, err := tileExtent(tc)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	data, err := s.pool.Render(ctx, Request{Width: TileSize, Height: TileSize, Extent: extent})
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, tc, data); err != nil {
			s.logger.Warn("Tile cache write failed.", "tile", tc.String(), "error", err)
		}
		w.Header().Set("X-Cache", "miss")
	}
	sendPNG(w, data)
}

func parseTile(vars map[string]string) (tilecache.Coord, error) {
	var tc tilecache.Coord
	z, err := strconv.ParseUint(vars["z"], 10, 32)
	if err != nil || z > MaxTileZoom {
		return tc, fmt.Errorf("zoom %s not in [0,%d]", vars["z"], MaxTileZoom)
	}
	x, errX := strconv.ParseUint(vars["x"], 10, 32)
	y, errY := strconv.ParseUint(vars["y"], 10, 32)
	n := uint64(1) << z
	if errX != nil || errY != nil || x >= n || y >= n {
		return tc, fmt.Errorf("tile %s/%s/%s out of range", vars["z"], vars["x"], vars["y"])
	}
	return tilecache.Coord{Z: uint32(z), X: uint32(x), Y: uint32(y)}, nil
}

// tileExtent is the tile's spherical Mercator box.
func tileExtent(tc tilecache.Coord) (carto.Box, error) {
	b := maptile.New(tc.X, tc.Y, maptile.Zoom(tc.Z)).Bound()
	return export.BBox{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}.Project()
}

type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

func sendJSON(w http.ResponseWriter, code int, status string, data any) {
	js, err := json.Marshal(envelope{Status: status, Data: data})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	w.Write(js)
}

func sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, "error", map[string]string{"message": message})
}

func sendPNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Request served.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	logger := ctxlog.FromContext(ctx)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting server.", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
