package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and makes sure the schema exists.
func Open(databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if err = createTables(conn); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return conn, nil
}

func createTables(conn *sql.DB) error {
	queries := []string{
		// One row per live transport connection.
		`CREATE TABLE IF NOT EXISTS connections (
			connection_id TEXT PRIMARY KEY,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,

		// One row per duel. State lives in typed columns so every
		// conditional mutation is a single UPDATE whose WHERE clause is
		// the compare-and-swap condition.
		`CREATE TABLE IF NOT EXISTS duels (
			duel_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			guest_id TEXT NOT NULL DEFAULT '',
			active_turn TEXT NOT NULL DEFAULT '',
			owner_ready BOOLEAN NOT NULL DEFAULT false,
			guest_ready BOOLEAN NOT NULL DEFAULT false,
			owner_life INTEGER NOT NULL,
			guest_life INTEGER NOT NULL,
			owner_cards JSONB NOT NULL DEFAULT '{}',
			guest_cards JSONB NOT NULL DEFAULT '{}',
			extra_slots JSONB NOT NULL DEFAULT '{}',
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,

		// Outbox: every committed create/join/rejoin/update lands here in
		// the same transaction as the mutation. The broadcaster drains it
		// in id order past its cursor.
		`CREATE TABLE IF NOT EXISTS duel_events (
			id BIGSERIAL PRIMARY KEY,
			duel_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			guest_id TEXT NOT NULL,
			state JSONB NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			committed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS feed_offsets (
			consumer TEXT PRIMARY KEY,
			last_id BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_duel_events_duel ON duel_events (duel_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_duels_expires ON duels (expires_at)`,
	}

	for _, query := range queries {
		_, err := conn.Exec(query)
		if err != nil {
			return err
		}
	}

	return nil
}
