// Package series defines the normalized time-series contract the engine
// evaluates against, plus the PostgreSQL provider implementation.
package series

import (
	"context"
	"time"
)

// Point is one normalized observation in a series. For the official series
// Value is the case count and Secondary the death count; for the social
// series Value is the mention count and Secondary the sentiment score in
// [-1, 1].
type Point struct {
	EntityCode string
	Date       time.Time
	Value      float64
	Secondary  float64
}

// Provider supplies ordered series points for an entity, series type, and
// date range. Points are ordered by date ascending with no duplicate dates
// per entity within a series. The engine only depends on this contract.
type Provider interface {
	Query(ctx context.Context, entityCode, seriesType string, start, end time.Time) ([]Point, error)
}
