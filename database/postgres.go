package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type DBClient struct {
	DB  *sql.DB
	log *logrus.Logger
}

// NewPostgresDB opens the tenant database. The pool is sized for short
// key lookups, one per request.
func NewPostgresDB(dbURL string, log *logrus.Logger) (*DBClient, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database url must be set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	log.Info("connected to PostgreSQL")
	return &DBClient{DB: db, log: log}, nil
}

func (c *DBClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.log.WithError(err).Warn("error closing PostgreSQL connection")
		return
	}
	c.log.Info("PostgreSQL connection closed")
}
