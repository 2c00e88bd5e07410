package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN          string        `envconfig:"DSN" required:"true"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"10s"`
	WriteTimeout time.Duration `split_words:"true" default:"10s"`
	MaxOpenConns int           `split_words:"true" default:"10"`
}

// New opens a bun DB over pgdriver and verifies the connection.
func (c *Config) New(ctx context.Context) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(c.DSN),
		pgdriver.WithDialTimeout(c.DialTimeout),
		pgdriver.WithReadTimeout(c.ReadTimeout),
		pgdriver.WithWriteTimeout(c.WriteTimeout),
	)

	sqldb := sql.OpenDB(connector)
	if c.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(c.MaxOpenConns)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

func (c *Config) MustNew(ctx context.Context) *bun.DB {
	db, err := c.New(ctx)
	if err != nil {
		panic(err)
	}
	return db
}
