package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"

	"beacon/api/config"
)

type ClickHouseClient struct {
	DB  *sql.DB
	log *logrus.Logger
}

// NewClickHouseDB opens the event store over the native protocol, exposed
// through database/sql.
func NewClickHouseDB(cfg *config.Config, log *logrus.Logger) (*ClickHouseClient, error) {
	if cfg.ClickHouseHost == "" || cfg.ClickHouseDBName == "" {
		return nil, fmt.Errorf("clickhouse host and database name must be set")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickHouseHost, cfg.ClickHouseNativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDBName,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "beacon-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 10 * time.Minute,
	}

	db := clickhouse.OpenDB(options)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.WithField("addr", options.Addr[0]).Info("connected to ClickHouse")
	return &ClickHouseClient{DB: db, log: log}, nil
}

func (c *ClickHouseClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.log.WithError(err).Warn("error closing ClickHouse connection")
		return
	}
	c.log.Info("ClickHouse connection closed")
}
