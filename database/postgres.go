package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

type DBClient struct {
	DB  *sql.DB
	log *slog.Logger
}

// NewPostgresDB opens the relational database that holds API user accounts.
func NewPostgresDB(log *slog.Logger, dbURL string) (*DBClient, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	log.Info("connected to PostgreSQL")
	return &DBClient{DB: db, log: log}, nil
}

func (c *DBClient) Close() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.log.Error("error closing database connection", "error", err)
		} else {
			c.log.Info("PostgreSQL connection closed")
		}
	}
}
