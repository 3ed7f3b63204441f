package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/paulmach/orb"

	"geoexport/internal/geom"
)

// Default geometry column of osm2pgsql imports.
const defaultGeometryField = "way"

// PostGIS queries a table (or a parenthesised subquery) with the bounding box
// pushed down to the index.
type PostGIS struct {
	db        *sql.DB
	table     string
	geomField string
	srid      int
	envelope  orb.Bound
}

// OpenPostGIS connects using the host, port, user, password, dbname and
// sslmode parameters. The envelope comes from the extent parameter or is
// computed with ST_Extent.
func OpenPostGIS(ctx context.Context, p Params) (*PostGIS, error) {
	if p["table"] == "" {
		return nil, errors.New("postgis datasource: missing table parameter")
	}
	ds := &PostGIS{
		table:     p["table"],
		geomField: p["geometry_field"],
		srid:      3857,
	}
	if ds.geomField == "" {
		ds.geomField = defaultGeometryField
	}
	if s := p["srid"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("postgis datasource: srid: %w", err)
		}
		ds.srid = n
	}

	db, err := sql.Open("postgres", connString(p))
	if err != nil {
		return nil, fmt.Errorf("postgis datasource: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgis datasource: %w", err)
	}
	ds.db = db

	if e := p["extent"]; e != "" {
		ds.envelope, err = parseExtent(e)
	} else {
		ds.envelope, err = ds.queryExtent(ctx)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgis datasource: %w", err)
	}
	return ds, nil
}

var connKeys = []string{"host", "port", "user", "password", "dbname", "sslmode", "connect_timeout"}

// connString builds a lib/pq key=value connection string.
func connString(p Params) string {
	var parts []string
	for _, k := range connKeys {
		if v, ok := p[k]; ok && v != "" {
			parts = append(parts, k+"='"+strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)+"'")
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func parseExtent(s string) (orb.Bound, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 4 {
		return orb.Bound{}, fmt.Errorf("extent %q: want 4 numbers", s)
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("extent %q: %w", s, err)
		}
		v[i] = n
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// envelopeSQL matches the four bbox placeholders of featureQuery.
const envelopeSQL = "ST_MakeEnvelope($1, $2, $3, $4, %d)"

// relation renders the table parameter for a FROM clause. Subqueries are used
// as is, with the !bbox!, !scale_denominator!, !pixel_width! and
// !pixel_height! tokens replaced; bbox is the SQL for the query envelope.
func (p *PostGIS) relation(bbox string, q Query) string {
	if !strings.HasPrefix(strings.TrimSpace(p.table), "(") {
		return quoteQualified(p.table)
	}
	num := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	return strings.NewReplacer(
		"!bbox!", bbox,
		"!scale_denominator!", num(q.ScaleDenominator),
		"!pixel_width!", num(q.PixelWidth),
		"!pixel_height!", num(q.PixelWidth),
	).Replace(p.table)
}

// quoteQualified quotes each part of a schema qualified name.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

func (p *PostGIS) queryExtent(ctx context.Context) (orb.Bound, error) {
	q := fmt.Sprintf(
		"SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e) FROM (SELECT ST_Extent(%s) AS e FROM %s) AS ext",
		pq.QuoteIdentifier(p.geomField), p.relation(p.worldEnvelope(), Query{}))
	var minX, minY, maxX, maxY sql.NullFloat64
	if err := p.db.QueryRowContext(ctx, q).Scan(&minX, &minY, &maxX, &maxY); err != nil {
		return orb.Bound{}, err
	}
	if !minX.Valid {
		return orb.Bound{}, nil
	}
	return orb.Bound{Min: orb.Point{minX.Float64, minY.Float64}, Max: orb.Point{maxX.Float64, maxY.Float64}}, nil
}

// worldEnvelope stands in for !bbox! when no frame is known yet.
func (p *PostGIS) worldEnvelope() string {
	return fmt.Sprintf("ST_MakeEnvelope(-1e300, -1e300, 1e300, 1e300, %d)", p.srid)
}

// featureQuery selects the geometry as WKB in the first column followed by
// every column of the relation. $1..$4 are the bbox corners.
func (p *PostGIS) featureQuery(q Query) string {
	env := fmt.Sprintf(envelopeSQL, p.srid)
	return fmt.Sprintf(
		"SELECT ST_AsBinary(%[1]s) AS __geometry__, * FROM %[2]s WHERE %[1]s && %[3]s",
		pq.QuoteIdentifier(p.geomField), p.relation(env, q), env)
}

func (p *PostGIS) Features(ctx context.Context, q Query) ([]geom.Feature, error) {
	rows, err := p.db.QueryContext(ctx, p.featureQuery(q), q.Box.Min.X(), q.Box.Min.Y(), q.Box.Max.X(), q.Box.Max.Y())
	if err != nil {
		return nil, fmt.Errorf("postgis query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var c geom.Collection
	for rows.Next() {
		g, props, err := scanFeature(rows, cols, 0)
		if err != nil {
			return nil, fmt.Errorf("postgis row: %w", err)
		}
		delete(props, p.geomField)
		c.Add(g, props)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgis rows: %w", err)
	}
	return c.Features, nil
}

func (p *PostGIS) Envelope() orb.Bound { return p.envelope }

func (p *PostGIS) Close() error { return p.db.Close() }
