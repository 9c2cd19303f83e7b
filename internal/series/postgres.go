package series

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/PedroRgz/Episcopio/internal/rules"
)

// PostgresProvider reads normalized series points from the serie_oficial and
// serie_social tables maintained by the ETL tier.
type PostgresProvider struct {
	conn *sql.DB
}

// NewPostgresProvider creates a provider on an existing connection pool.
func NewPostgresProvider(conn *sql.DB) *PostgresProvider {
	return &PostgresProvider{conn: conn}
}

// Query returns the points for one entity and series type within [start, end],
// ordered by date ascending.
func (p *PostgresProvider) Query(ctx context.Context, entityCode, seriesType string, start, end time.Time) ([]Point, error) {
	var query string
	switch seriesType {
	case rules.SeriesOfficial:
		query = `
			SELECT cve_ent, fecha, casos, defunciones
			FROM serie_oficial
			WHERE cve_ent = $1 AND fecha BETWEEN $2 AND $3
			ORDER BY fecha ASC
		`
	case rules.SeriesSocial:
		query = `
			SELECT cve_ent, fecha, menciones, sentimiento
			FROM serie_social
			WHERE cve_ent = $1 AND fecha BETWEEN $2 AND $3
			ORDER BY fecha ASC
		`
	default:
		return nil, fmt.Errorf("unknown series type: %s", seriesType)
	}

	rows, err := p.conn.QueryContext(ctx, query, entityCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s series for entity %s: %w", seriesType, entityCode, err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var pt Point
		if err := rows.Scan(&pt.EntityCode, &pt.Date, &pt.Value, &pt.Secondary); err != nil {
			return nil, fmt.Errorf("failed to scan series point: %w", err)
		}
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read series rows: %w", err)
	}
	return points, nil
}
