package database

import (
	"context"
	"fmt"

	"github.com/singletrack/race-control/internal/config"
)

// schema is applied idempotently at startup. The unique constraint on
// (race_id, rider_id) enforces the one-result-per-pair invariant at the
// store level, and the status columns back the guarded conditional updates
// the lifecycle services depend on.
const schema = `
CREATE TABLE IF NOT EXISTS riders (
	id UUID PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS races (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	location_name TEXT NOT NULL,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	distance_km DOUBLE PRECISION NOT NULL,
	terrain TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	categories TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'draft',
	weather JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS results (
	id UUID PRIMARY KEY,
	race_id UUID NOT NULL REFERENCES races(id) ON DELETE CASCADE,
	rider_id UUID NOT NULL REFERENCES riders(id),
	start_time TIMESTAMPTZ,
	finish_time TIMESTAMPTZ,
	total_time BIGINT,
	status TEXT NOT NULL DEFAULT 'registered',
	position INTEGER,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT results_race_rider_unique UNIQUE (race_id, rider_id)
);

CREATE INDEX IF NOT EXISTS idx_results_race_status ON results (race_id, status);
CREATE INDEX IF NOT EXISTS idx_races_status_start ON races (status, start_time);
`

// Initialize creates a database connection pool and applies the schema
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if _, err := db.pool.Exec(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}
