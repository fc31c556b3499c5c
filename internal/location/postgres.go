package location

import (
	"context"
	"database/sql"
	"fmt"

	"outing-workers/internal/models"
)

const selectMappingsQuery = `SELECT name, province, COALESCE(district, '') FROM location_mappings`

// LoadFromPostgres merges rows of location_mappings(name, province, district) into the builder.
// It returns the number of rows applied.
func (b *Builder) LoadFromPostgres(ctx context.Context, db *sql.DB) (int, error) {
	rows, err := db.QueryContext(ctx, selectMappingsQuery)
	if err != nil {
		return 0, fmt.Errorf("query location_mappings: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var name string
		var m models.LocationMapping
		if err := rows.Scan(&name, &m.Province, &m.District); err != nil {
			return n, fmt.Errorf("scan location_mappings: %w", err)
		}
		b.Add(name, m)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate location_mappings: %w", err)
	}
	return n, nil
}
