package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/labstack/gommon/log"
	kpool "github.com/opst/sealparams/pkg/conn/db/postgres/pool"
	"github.com/opst/sealparams/pkg/conn/db/postgres/scanner"
	"github.com/opst/sealparams/pkg/db"
	"github.com/opst/sealparams/pkg/params"
)

const (
	DefaultSuccessOutcome = "Úspěch"
	DefaultMachineColumn  = "sackovacka"
)

type pgHistory struct {
	pool           kpool.Pool
	successOutcome string
	query          string
	logger         *log.Logger
}

var _ db.HistoryInterface = &pgHistory{}

type Config struct {
	// attempts with this outcome are successful.
	SuccessOutcome string

	// column of "orders" which holds the sealing machine.
	MachineColumn string
}

type Option func(*Config) *Config

func WithSuccessOutcome(outcome string) Option {
	return func(c *Config) *Config {
		c.SuccessOutcome = outcome
		return c
	}
}

func WithMachineColumn(column string) Option {
	return func(c *Config) *Config {
		c.MachineColumn = column
		return c
	}
}

func New(pool kpool.Pool, options ...Option) db.HistoryInterface {
	c := &Config{SuccessOutcome: DefaultSuccessOutcome, MachineColumn: DefaultMachineColumn}
	for _, opt := range options {
		c = opt(c)
	}
	return &pgHistory{
		pool:           pool,
		successOutcome: c.SuccessOutcome,
		query:          Query(c.MachineColumn),
		logger:         log.New("history"),
	}
}

type attemptRow struct {
	MaterialType  pgtype.Text   `sql:"material_type"`
	PrintCoverage pgtype.Float8 `sql:"print_coverage"`
	PackageSize   pgtype.Int8   `sql:"package_size"`
	MachineID     pgtype.Text   `sql:"machine_id"`

	// values of continuous slots, in the order of params.Layout
	Continuous pgtype.Float8Array `sql:"continuous"`

	// setups, in the order of params.Layout
	Setups pgtype.TextArray `sql:"setups"`
}

// Query is the SQL selecting successful attempts. $1 is the success outcome.
func Query(machineColumn string) string {
	continuous, setups := []string{}, []string{}
	for _, slot := range params.Layout {
		col := pgx.Identifier{"a", slot.Name}.Sanitize()
		if slot.Kind == params.Setup {
			setups = append(setups, col)
		} else {
			continuous = append(continuous, col)
		}
	}

	return fmt.Sprintf(
		`SELECT
	"o"."material_type"::text AS "material_type",
	"o"."print_coverage"::float8 AS "print_coverage",
	"o"."package_size"::int8 AS "package_size",
	%s::text AS "machine_id",
	ARRAY[%s]::float8[] AS "continuous",
	ARRAY[%s]::text[] AS "setups"
FROM "attempts" AS "a"
JOIN "orders" AS "o" ON "a"."order_id" = "o"."id"
WHERE "a"."outcome" = $1
AND "a"."zipper_temperature_c" IS NOT NULL`,
		pgx.Identifier{"o", machineColumn}.Sanitize(),
		strings.Join(continuous, ", "),
		strings.Join(setups, ", "),
	)
}

func (h *pgHistory) SuccessfulAttempts(ctx context.Context) ([]params.Example, error) {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	defer conn.Release()

	rows, err := scanner.New[attemptRow]().QueryAll(ctx, conn, h.query, h.successOutcome)
	if err != nil {
		return nil, upstream(err)
	}

	examples := make([]params.Example, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		ex, ok := r.toExample()
		if !ok {
			skipped++
			continue
		}
		examples = append(examples, ex)
	}
	if skipped != 0 {
		h.logger.Warnf("%d of %d successful attempts are skipped: some values are missing", skipped, len(rows))
	}
	return examples, nil
}

// toExample converts r. It is false when any value is NULL.
func (r attemptRow) toExample() (params.Example, bool) {
	if r.MaterialType.Status != pgtype.Present ||
		r.PrintCoverage.Status != pgtype.Present ||
		r.PackageSize.Status != pgtype.Present ||
		r.MachineID.Status != pgtype.Present ||
		r.Continuous.Status != pgtype.Present ||
		r.Setups.Status != pgtype.Present {
		return params.Example{}, false
	}

	continuous := make([]float64, 0, len(r.Continuous.Elements))
	for _, e := range r.Continuous.Elements {
		if e.Status != pgtype.Present {
			return params.Example{}, false
		}
		continuous = append(continuous, e.Float)
	}
	setups := make([]string, 0, len(r.Setups.Elements))
	for _, e := range r.Setups.Elements {
		if e.Status != pgtype.Present {
			return params.Example{}, false
		}
		setups = append(setups, e.String)
	}

	result, err := params.Assemble(continuous, setups)
	if err != nil {
		return params.Example{}, false
	}
	return params.Example{
		Order: params.Request{
			MaterialType:  r.MaterialType.String,
			PrintCoverage: r.PrintCoverage.Float,
			PackageSize:   int(r.PackageSize.Int),
			MachineID:     r.MachineID.String,
		},
		Parameters: result,
	}, true
}

// upstream wraps err with db.ErrUpstream, noting what kind of failure it is.
func upstream(err error) error {
	if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
		switch {
		case pgerr.Code == pgerrcode.UndefinedTable || pgerr.Code == pgerrcode.UndefinedColumn:
			return fmt.Errorf("%w: schema does not match (%s): %w", db.ErrUpstream, pgerr.Code, err)
		case pgerrcode.IsConnectionException(pgerr.Code):
			return fmt.Errorf("%w: connection failure (%s): %w", db.ErrUpstream, pgerr.Code, err)
		case pgerrcode.IsInsufficientResources(pgerr.Code):
			return fmt.Errorf("%w: database is busy (%s): %w", db.ErrUpstream, pgerr.Code, err)
		}
	}
	if pgconn.Timeout(err) {
		return fmt.Errorf("%w: timeout: %w", db.ErrUpstream, err)
	}
	return fmt.Errorf("%w: %w", db.ErrUpstream, err)
}
