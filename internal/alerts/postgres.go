package alerts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists alert records in the alertas table. A partial
// unique index on (regla_id, cve_ent) WHERE estado='activa' backstops the
// at-most-one-active invariant under concurrent writers.
type PostgresStore struct {
	conn *sql.DB
}

// NewPostgresStore creates a store on an existing connection pool.
func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn}
}

const recordColumns = `alerta_id, tipo, regla_id, cve_ent, estado, evidencia, clear_streak, created_at, last_triggered_at, resolved_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var resolvedAt sql.NullTime
	err := row.Scan(
		&rec.ID,
		&rec.AlertType,
		&rec.RuleID,
		&rec.EntityCode,
		&rec.State,
		&rec.Evidence,
		&rec.ClearStreak,
		&rec.CreatedAt,
		&rec.LastTriggeredAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	return &rec, nil
}

// FindActive returns the ACTIVE record for the pair, or nil, nil when none
// exists.
func (s *PostgresStore) FindActive(ctx context.Context, ruleID, entityCode string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM alertas
		WHERE regla_id = $1 AND cve_ent = $2 AND estado = $3
	`
	rec, err := scanRecord(s.conn.QueryRowContext(ctx, query, ruleID, entityCode, StateActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active alert for rule %s entity %s: %w", ruleID, entityCode, err)
	}
	return rec, nil
}

// FindLatest returns the most recently triggered record for the pair in any
// state, or nil, nil when the pair has no history.
func (s *PostgresStore) FindLatest(ctx context.Context, ruleID, entityCode string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM alertas
		WHERE regla_id = $1 AND cve_ent = $2
		ORDER BY last_triggered_at DESC
		LIMIT 1
	`
	rec, err := scanRecord(s.conn.QueryRowContext(ctx, query, ruleID, entityCode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest alert for rule %s entity %s: %w", ruleID, entityCode, err)
	}
	return rec, nil
}

// Upsert inserts the record or updates it in place by id. A unique violation
// on the active partial index means another writer created an active record
// for the same key first; that surfaces as ErrConflict.
func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO alertas (alerta_id, tipo, regla_id, cve_ent, estado, evidencia, clear_streak, created_at, last_triggered_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (alerta_id) DO UPDATE SET
			estado = EXCLUDED.estado,
			evidencia = EXCLUDED.evidencia,
			clear_streak = EXCLUDED.clear_streak,
			last_triggered_at = EXCLUDED.last_triggered_at,
			resolved_at = EXCLUDED.resolved_at
	`
	var resolvedAt sql.NullTime
	if rec.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *rec.ResolvedAt, Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, query,
		rec.ID,
		rec.AlertType,
		rec.RuleID,
		rec.EntityCode,
		rec.State,
		[]byte(rec.Evidence),
		rec.ClearStreak,
		rec.CreatedAt,
		rec.LastTriggeredAt,
		resolvedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation on the active partial index
				return fmt.Errorf("alert for rule %s entity %s: %w", rec.RuleID, rec.EntityCode, ErrConflict)
			}
		}
		return fmt.Errorf("failed to upsert alert %s: %w", rec.ID, err)
	}
	return nil
}
