package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"

	"geoexport/internal/geom"
)

var geometryColumns = []string{"geometry", "geom", "wkb_geometry", "the_geom", "wkt", "way"}

// OpenSQLite reads every row of table into memory. The geometry column holds
// WKB blobs or WKT text; when geomField is empty a conventional name is picked.
func OpenSQLite(ctx context.Context, path, table, geomField string) (*Memory, error) {
	if table == "" {
		return nil, errors.New("sqlite datasource: missing table parameter")
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("sqlite datasource: %w", err)
	}
	defer db.Close()

	// SQLite shares the SQL standard identifier quoting used by PostgreSQL.
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+pq.QuoteIdentifier(table))
	if err != nil {
		return nil, fmt.Errorf("sqlite datasource %s: %w", path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	gi := geometryIndex(cols, geomField)
	if gi < 0 {
		return nil, fmt.Errorf("sqlite datasource %s: no geometry column in %q", path, table)
	}

	var c geom.Collection
	for rows.Next() {
		g, props, err := scanFeature(rows, cols, gi)
		if err != nil {
			return nil, fmt.Errorf("sqlite datasource %s: %w", path, err)
		}
		c.Add(g, props)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite datasource %s: %w", path, err)
	}
	return NewMemory(c), nil
}

func geometryIndex(cols []string, field string) int {
	if field != "" {
		return slices.Index(cols, field)
	}
	for _, name := range geometryColumns {
		for i, c := range cols {
			if strings.EqualFold(c, name) {
				return i
			}
		}
	}
	return -1
}

// scanFeature reads one row: column gi is the geometry, the rest are attributes.
func scanFeature(rows *sql.Rows, cols []string, gi int) (orb.Geometry, map[string]any, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, nil, err
	}
	g, err := decodeGeometry(vals[gi])
	if err != nil {
		return nil, nil, err
	}
	props := make(map[string]any, len(cols)-1)
	for i, v := range vals {
		if i == gi {
			continue
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		props[cols[i]] = v
	}
	return g, props, nil
}

func decodeGeometry(v any) (orb.Geometry, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) > 0 && (v[0] == 0 || v[0] == 1) {
			return wkb.Unmarshal(v)
		}
		return wkt.Unmarshal(string(v))
	case string:
		return wkt.Unmarshal(v)
	}
	return nil, fmt.Errorf("unsupported geometry value %T", v)
}
