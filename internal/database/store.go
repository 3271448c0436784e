package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the connection pool with typed query methods.
// Queries are grouped per table: users.go, uploads.go, jobs.go, shares.go, settings.go.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
