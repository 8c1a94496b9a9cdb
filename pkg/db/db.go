package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	log "github.com/sirupsen/logrus"
)

// Connect establishes the database connection pool and verifies it with a
// ping. The pool is returned to the caller and injected where needed rather
// than held in a package global.
func Connect(dbURL string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		log.Errorf("Failed to ping database: %v", err)
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Conservative pool limits for a managed Postgres plan.
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)

	log.Info("Database connection pool initialized successfully.")
	return conn, nil
}

// Close shuts the pool down. Deferred from main.
func Close(conn *sqlx.DB) {
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Errorf("Error closing database connection: %v", err)
		} else {
			log.Info("Database connection pool closed.")
		}
	}
}
