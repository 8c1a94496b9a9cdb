package queries

import (
	"github.com/jmoiron/sqlx"
)

// Store wraps the connection pool and carries every query the service runs.
// Constructed once in main and injected into handlers.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping reports whether the database connection is alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}
