package history_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/sealparams/pkg/conn/db/postgres/pool"
	"github.com/opst/sealparams/pkg/db"
	"github.com/opst/sealparams/pkg/db/postgres/history"
	"github.com/opst/sealparams/pkg/params"
)

type fakeRows struct {
	columns []string
	data    [][]interface{}
	nth     int
}

func (r *fakeRows) Close()                         {}
func (r *fakeRows) Err() error                     { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag  { return pgconn.CommandTag("SELECT") }
func (r *fakeRows) RawValues() [][]byte            { return nil }
func (r *fakeRows) Values() ([]interface{}, error) { return r.data[r.nth-1], nil }
func (r *fakeRows) FieldDescriptions() []pgproto3.FieldDescription {
	fds := make([]pgproto3.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgproto3.FieldDescription{Name: []byte(c)}
	}
	return fds
}
func (r *fakeRows) Next() bool {
	r.nth++
	return r.nth <= len(r.data)
}
func (r *fakeRows) Scan(dest ...interface{}) error {
	for i, d := range dest {
		if err := d.(pgtype.Value).Set(r.data[r.nth-1][i]); err != nil {
			return err
		}
	}
	return nil
}

type mockConn struct {
	queries []string
	args    [][]interface{}
	rows    pgx.Rows
	err     error
}

func (c *mockConn) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return nil, errors.New("[MOCK] not implemented")
}
func (c *mockConn) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	c.queries = append(c.queries, sql)
	c.args = append(c.args, args)
	return c.rows, c.err
}
func (c *mockConn) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }
func (c *mockConn) Release()                                                {}
func (c *mockConn) Ping(context.Context) error                              { return nil }

type mockPool struct {
	conn *mockConn
	err  error
}

func (p *mockPool) Acquire(context.Context) (kpool.Conn, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.conn, nil
}
func (p *mockPool) Ping(context.Context) error { return nil }
func (p *mockPool) Close()                     {}

var columns = []string{"material_type", "print_coverage", "package_size", "machine_id", "continuous", "setups"}

func continuous(base float64) []float64 {
	vs := make([]float64, params.OutputWidth-len(params.SetupOffsets))
	for i := range vs {
		vs[i] = base + float64(i)
	}
	return vs
}

func TestSuccessfulAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("complete rows become examples, and rows with NULL are skipped", func(t *testing.T) {
		withNull := make([]*float64, params.OutputWidth-len(params.SetupOffsets))
		for i := range withNull {
			v := float64(i)
			withNull[i] = &v
		}
		withNull[3] = nil

		conn := &mockConn{rows: &fakeRows{
			columns: columns,
			data: [][]interface{}{
				{"PAP/PET/LDPE (MAT-02448)", 35.5, 3, "S2", continuous(100), []string{"flat", "wave", "flat", "cross", "knurl"}},
				{"PAP/PET/LDPE (MAT-02448)", 35.5, 3, "S2", withNull, []string{"flat", "wave", "flat", "cross", "knurl"}},
				{nil, 12.0, 1, "S1", continuous(100), []string{"flat", "wave", "flat", "cross", "knurl"}},
				{"BOPP/CPP", 0.0, 1, "S1", continuous(200), []*string{nil, nil, nil, nil, nil}},
			},
		}}
		testee := history.New(&mockPool{conn: conn}, history.WithSuccessOutcome("success"))

		actual, err := testee.SuccessfulAttempts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(actual) != 1 {
			t.Fatalf("unexpected examples: %+v", actual)
		}

		ex := actual[0]
		expectedOrder := params.Request{MaterialType: "PAP/PET/LDPE (MAT-02448)", PrintCoverage: 35.5, PackageSize: 3, MachineID: "S2"}
		if ex.Order != expectedOrder {
			t.Errorf("unmatch order: (expected, actual) = (%+v, %+v)", expectedOrder, ex.Order)
		}
		if ex.Parameters.Zipper.TemperatureC != 100 || ex.Parameters.SideA.DwellTimeS != 125 {
			t.Errorf("values are misplaced: %+v", ex.Parameters)
		}
		if ex.Parameters.SideE.Setup != "flat" || ex.Parameters.SideA.Setup != "knurl" {
			t.Errorf("setups are misplaced: %+v", ex.Parameters)
		}

		if len(conn.args) != 1 || len(conn.args[0]) != 1 || conn.args[0][0] != "success" {
			t.Errorf("success outcome is not passed as a parameter: %v", conn.args)
		}
	})

	t.Run("failure to connect is ErrUpstream", func(t *testing.T) {
		testee := history.New(&mockPool{err: errors.New("dial tcp: connection refused")})
		if _, err := testee.SuccessfulAttempts(ctx); !errors.Is(err, db.ErrUpstream) {
			t.Errorf("expected ErrUpstream, but %v", err)
		}
	})

	t.Run("missing table is ErrUpstream, and noted", func(t *testing.T) {
		pgerr := &pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "attempts" does not exist`}
		testee := history.New(&mockPool{conn: &mockConn{err: pgerr}})

		_, err := testee.SuccessfulAttempts(ctx)
		if !errors.Is(err, db.ErrUpstream) {
			t.Fatalf("expected ErrUpstream, but %v", err)
		}
		if !errors.As(err, new(*pgconn.PgError)) {
			t.Errorf("original error is lost: %v", err)
		}
		if !strings.Contains(err.Error(), "schema does not match") {
			t.Errorf("unexpected message: %s", err)
		}
	})

	t.Run("unexpected column is an error", func(t *testing.T) {
		conn := &mockConn{rows: &fakeRows{columns: append(columns, "operator"), data: nil}}
		if _, err := history.New(&mockPool{conn: conn}).SuccessfulAttempts(ctx); !errors.Is(err, db.ErrUpstream) {
			t.Errorf("expected ErrUpstream, but %v", err)
		}
	})
}

func TestQuery(t *testing.T) {
	q := history.Query("sackovacka")

	for _, expected := range []string{
		`"o"."sackovacka"::text AS "machine_id"`,
		`"a"."zipper_temperature_c", "a"."zipper_pressure_bar"`,
		`ARRAY["a"."side_e_setup", "a"."side_d_setup", "a"."side_c_setup", "a"."side_b_setup", "a"."side_a_setup"]::text[]`,
		`WHERE "a"."outcome" = $1`,
	} {
		if !strings.Contains(q, expected) {
			t.Errorf("query does not contain %s:\n%s", expected, q)
		}
	}

	if strings.Contains(history.Query(`x"; DROP TABLE orders; --`), `"x";`) {
		t.Error("machine column is not quoted")
	}
}
