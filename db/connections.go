package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Registry is the Postgres-backed connection registry. Every mutation
// is a single statement, so an unregister is visible to the next
// snapshot immediately.
type Registry struct {
	conn *sql.DB
}

func NewRegistry(conn *sql.DB) *Registry {
	return &Registry{conn: conn}
}

func (r *Registry) Register(ctx context.Context, connID string) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO connections (connection_id) VALUES ($1)
		 ON CONFLICT (connection_id) DO NOTHING`, connID)
	if err != nil {
		return fmt.Errorf("register connection %s: %w", connID, err)
	}
	return nil
}

func (r *Registry) Unregister(ctx context.Context, connID string) error {
	_, err := r.conn.ExecContext(ctx,
		`DELETE FROM connections WHERE connection_id = $1`, connID)
	if err != nil {
		return fmt.Errorf("unregister connection %s: %w", connID, err)
	}
	return nil
}

func (r *Registry) Contains(ctx context.Context, connID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM connections WHERE connection_id = $1)`,
		connID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check connection %s: %w", connID, err)
	}
	return exists, nil
}

func (r *Registry) ListAll(ctx context.Context) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT connection_id FROM connections`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
