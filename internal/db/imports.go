package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ResolveLatestDataset returns the most recently imported dataset from
// public.track_imports, optionally restricted to names containing like.
func ResolveLatestDataset(ctx context.Context, db *sql.DB, like string) (string, error) {
	like = strings.TrimSpace(like)
	q := `
SELECT dataset
FROM public.track_imports
WHERE dataset ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	if err := db.QueryRowContext(ctx, q, like).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no dataset imported matching %q", like)
		}
		return "", err
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("empty dataset name matching %q", like)
	}
	return name.String, nil
}
