package datasource

import (
	"context"

	"github.com/paulmach/orb"

	"geoexport/internal/geom"
)

// Memory serves a fully loaded collection.
type Memory struct {
	c geom.Collection
}

func NewMemory(c geom.Collection) *Memory {
	return &Memory{c: c}
}

// Features returns the features whose bound intersects q.Box.
func (m *Memory) Features(ctx context.Context, q Query) ([]geom.Feature, error) {
	out := make([]geom.Feature, 0, len(m.c.Features))
	for i, f := range m.c.Features {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if f.Geometry.Bound().Intersects(q.Box) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) Envelope() orb.Bound { return m.c.Bound }

func (m *Memory) Close() error { return nil }
