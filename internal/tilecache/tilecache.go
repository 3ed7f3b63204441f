// Package tilecache stores rendered tiles in an MBTiles 1.2 sqlite file.
//
// Rows are addressed in TMS order (origin bottom left) as the format requires;
// callers pass XYZ coordinates and the cache flips them.
package tilecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// Coord is an XYZ tile address with the origin at the top left.
type Coord struct {
	Z, X, Y uint32
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// tmsRow flips y between XYZ and TMS numbering.
func (c Coord) tmsRow() uint32 {
	return (uint32(1) << c.Z) - c.Y - 1
}

var schema = []string{
	"CREATE TABLE IF NOT EXISTS metadata (name TEXT PRIMARY KEY NOT NULL, value TEXT NOT NULL)",
	"CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB, PRIMARY KEY (zoom_level, tile_column, tile_row))",
}

// Cache is an open MBTiles file. It is safe for concurrent use.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the MBTiles file at path and records meta in its
// metadata table. Keys already present are overwritten.
func Open(ctx context.Context, path string, meta map[string]string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open tile cache %s: %w", path, err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf("set up tile cache %s: %w", path, err)
		}
	}

	c := &Cache{db: db}
	if err := c.SetMetadata(ctx, defaults(meta)); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func defaults(meta map[string]string) map[string]string {
	out := map[string]string{
		"name":    "geoexport",
		"type":    "baselayer",
		"version": "1",
		"format":  "png",
		"bounds":  "-180.0,-85,180,85",
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// SetMetadata replaces the given metadata keys.
func (c *Cache) SetMetadata(ctx context.Context, meta map[string]string) error {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := c.db.ExecContext(ctx, "REPLACE INTO metadata (name, value) VALUES (?, ?)", k, meta[k]); err != nil {
			return fmt.Errorf("write metadata %q: %w", k, err)
		}
	}
	return nil
}

// Metadata returns the metadata table.
func (c *Cache) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Get returns the stored tile. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, tc Coord) (data []byte, ok bool, err error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?",
		tc.Z, tc.X, tc.tmsRow())
	switch err := row.Scan(&data); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get tile %s: %w", tc, err)
	}
	return data, true, nil
}

// Put stores data for tc, replacing any previous tile.
func (c *Cache) Put(ctx context.Context, tc Coord, data []byte) error {
	_, err := c.db.ExecContext(ctx,
		"REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)",
		tc.Z, tc.X, tc.tmsRow(), data)
	if err != nil {
		return fmt.Errorf("put tile %s: %w", tc, err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
