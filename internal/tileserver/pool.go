package tileserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"geoexport/internal/carto"
	"geoexport/internal/ctxlog"
)

// ErrPoolClosed is returned by Render after Close.
var ErrPoolClosed = errors.New("render pool closed")

// Request asks for one image of Extent (map coordinates) at the given size.
type Request struct {
	Width, Height int
	Extent        carto.Box
	Format        string
}

type job struct {
	ctx context.Context
	req Request
	out chan<- result
}

type result struct {
	data []byte
	err  error
}

// Pool renders requests on a fixed set of workers. A carto.Map is not safe
// for concurrent use, so every worker loads and owns its own.
type Pool struct {
	jobs   chan job
	maps   []*carto.Map
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool loads mapfile once per worker and starts the workers.
func NewPool(ctx context.Context, mapfile string, workers int) (*Pool, error) {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan job)}
	for i := 0; i < workers; i++ {
		m := carto.NewMap(256, 256)
		if err := m.LoadContext(ctx, mapfile); err != nil {
			p.closeMaps()
			return nil, fmt.Errorf("load %s: %w", mapfile, err)
		}
		p.maps = append(p.maps, m)
	}

	logger := ctxlog.FromContext(ctx)
	for i, m := range p.maps {
		p.wg.Add(1)
		go p.work(logger.With("worker", i), m)
	}
	return p, nil
}

func (p *Pool) work(logger *slog.Logger, m *carto.Map) {
	defer p.wg.Done()
	for j := range p.jobs {
		data, err := render(j.ctx, m, j.req)
		if err != nil {
			logger.Error("Render failed.", "extent", j.req.Extent.String(), "error", err)
		}
		j.out <- result{data: data, err: err}
	}
}

func render(ctx context.Context, m *carto.Map, req Request) ([]byte, error) {
	m.Resize(req.Width, req.Height)
	m.ZoomToBox(req.Extent)

	img := carto.NewImage(req.Width, req.Height)
	if err := carto.Render(ctx, m, img); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := img.View(0, 0, req.Width, req.Height).Encode(&buf, req.Format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Map returns a loaded map for read-only inspection of its layers and SRS.
func (p *Pool) Map() *carto.Map { return p.maps[0] }

func (p *Pool) Workers() int { return len(p.maps) }

// Render queues req and waits for the encoded image or for ctx to end.
func (p *Pool) Render(ctx context.Context, req Request) ([]byte, error) {
	if req.Format == "" {
		req.Format = "png"
	}
	out := make(chan result, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.jobs <- job{ctx: ctx, req: req, out: out}:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-out:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers after queued jobs finish and releases the maps.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	return p.closeMaps()
}

func (p *Pool) closeMaps() error {
	var errs []error
	for _, m := range p.maps {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
