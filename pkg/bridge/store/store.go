// Package store is the Postgres-backed session recorder and caller
// identity resolver. The database is an external collaborator shared with
// the business application; this core only touches the voice tables plus
// the clients and chat_messages tables it mirrors into.
//
// The store must tolerate concurrent writers: every active bridge pair
// writes rows it owns, so no in-process locking is needed.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against the given DSN and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// textOrNil converts an optional string to a nullable SQL parameter.
func textOrNil(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// metadataJSON marshals session metadata for the jsonb column.
// A nil or empty map becomes the empty object, never SQL NULL.
func metadataJSON(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
