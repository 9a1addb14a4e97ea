package postgres

import (
	"context"

	kpool "github.com/opst/sealparams/pkg/conn/db/postgres/pool"
	kdb "github.com/opst/sealparams/pkg/db"
	kpghistory "github.com/opst/sealparams/pkg/db/postgres/history"
	xe "github.com/opst/sealparams/pkg/errors"
)

type Database struct {
	pool    kpool.Pool
	history kdb.HistoryInterface
}

type Config struct {
	SuccessOutcome string
	MachineColumn  string
}

func DefaultConfig() Config {
	return Config{
		SuccessOutcome: kpghistory.DefaultSuccessOutcome,
		MachineColumn:  kpghistory.DefaultMachineColumn,
	}
}

type Option func(*Config) *Config

func WithSuccessOutcome(outcome string) Option {
	return func(c *Config) *Config {
		if outcome != "" {
			c.SuccessOutcome = outcome
		}
		return c
	}
}

func WithMachineColumn(column string) Option {
	return func(c *Config) *Config {
		if column != "" {
			c.MachineColumn = column
		}
		return c
	}
}

// New opens the database at url.
//
// Connections are made lazily, so New succeeds even when the database is down.
func New(ctx context.Context, url string, options ...Option) (*Database, error) {
	pool, err := kpool.Connect(ctx, url)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	c := DefaultConfig()
	for _, option := range options {
		c = *option(&c)
	}

	return &Database{
		pool: pool,
		history: kpghistory.New(
			pool,
			kpghistory.WithSuccessOutcome(c.SuccessOutcome),
			kpghistory.WithMachineColumn(c.MachineColumn),
		),
	}, nil
}

func (d *Database) History() kdb.HistoryInterface {
	return d.history
}

func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *Database) Close() error {
	d.pool.Close()
	return nil
}
