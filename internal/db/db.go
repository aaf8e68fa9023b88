package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// FeaturesTable stores one GeoJSON feature per row, grouped by dataset.
const FeaturesTable = "track_features"

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchFeatures returns the features of dataset in import order, each encoded
// as a GeoJSON Feature object.
func FetchFeatures(ctx context.Context, db *sql.DB, dataset string) ([]json.RawMessage, error) {
	cols, err := hasColumns(ctx, db, "public", FeaturesTable, "feature", "properties", "geom")
	if err != nil {
		return nil, fmt.Errorf("introspect %s columns: %w", FeaturesTable, err)
	}
	q, err := featureQuery(cols)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, dataset)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", FeaturesTable, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(s))
	}
	return out, rows.Err()
}

// featureQuery picks the query for the table layout: either a whole feature
// in a json column, or properties json next to a PostGIS LineString.
func featureQuery(cols map[string]bool) (string, error) {
	switch {
	case cols["feature"]:
		return `SELECT feature::text FROM ` + FeaturesTable + `
             WHERE dataset = $1 ORDER BY seq`, nil
	case cols["properties"] && cols["geom"]:
		return `SELECT json_build_object(
                    'type', 'Feature',
                    'geometry', ST_AsGeoJSON(geom)::json,
                    'properties', properties)::text
             FROM ` + FeaturesTable + `
             WHERE dataset = $1 ORDER BY seq`, nil
	}
	return "", fmt.Errorf("%s missing expected columns (feature or properties+geom)", FeaturesTable)
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
