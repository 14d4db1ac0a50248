package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
)

// ClickHouseConfig is the subset of settings needed to reach the event store.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type ClickHouseClient struct {
	Conn clickhouse.Conn
}

// analyticsEventsDDL is the event table. Optional fields are '' when absent.
const analyticsEventsDDL = `
CREATE TABLE IF NOT EXISTS analytics_events (
	id            String,
	user_id       String,
	event_type    LowCardinality(String),
	resource_type LowCardinality(String),
	resource_id   String,
	resource_name String,
	product_id    String,
	moodboard_id  String,
	metadata      String,
	session_id    String,
	ip_address    String,
	user_agent    String,
	browser       LowCardinality(String),
	os            LowCardinality(String),
	device        LowCardinality(String),
	referrer      String,
	url           String,
	created_at    DateTime64(3, 'UTC')
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (event_type, created_at)
`

func NewClickHouseDB(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseClient, error) {
	if cfg.Addr == "" || cfg.Database == "" {
		return nil, fmt.Errorf("ClickHouse address and database name are required")
	}

	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "lookbook-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("connected to ClickHouse")
	return &ClickHouseClient{Conn: conn}, nil
}

// EnsureSchema creates the event table if it does not exist.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.Conn.Exec(ctx, analyticsEventsDDL); err != nil {
		return fmt.Errorf("failed to create analytics_events: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Close(); err != nil {
		log.Error().Err(err).Msg("error closing ClickHouse connection")
		return
	}
	log.Info().Msg("ClickHouse connection closed")
}
