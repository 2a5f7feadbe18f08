package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const durationQuery = `SELECT duration_seconds FROM mock_tests WHERE id = $1`

// Querier is the subset of *pgxpool.Pool the catalog uses
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCatalog reads mock test durations from the mock_tests table
type PostgresCatalog struct {
	db Querier
}

// NewPostgresCatalog creates a catalog backed by db
func NewPostgresCatalog(db Querier) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Duration implements Catalog
func (c *PostgresCatalog) Duration(ctx context.Context, testID string) (int, error) {
	var seconds int32
	err := c.db.QueryRow(ctx, durationQuery, testID).Scan(&seconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query mock test %s: %w", testID, err)
	}
	return int(seconds), nil
}
