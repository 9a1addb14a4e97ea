package scanner

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

type Queryer interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// type-safe scanner for pgx.Rows
//
// # example
//
//	type Attempt struct {
//		Material pgtype.Text   `sql:"material_type"`
//		Coverage pgtype.Float8 `sql:"print_coverage"`
//	}
//
//	func GetAll(ctx context.Context, conn scanner.Queryer) ([]Attempt, error) {
//		return scanner.New[Attempt]().QueryAll(
//			ctx, conn, `select "material_type", "print_coverage" from "orders"`,
//		)
//	}
//
// # mapping rule
//
// columns are mapped into fields with tag `sql:"column_name"`.
// A column without such field is an error, as the query and the struct
// are out of sync.
type Scanner[T any] struct {
	byColumn map[string]int
}

// New builds a Scanner for T. T should be a struct.
func New[T any]() *Scanner[T] {
	t := reflect.TypeOf(*new(T))
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("scanner: %s is not a struct", t))
	}

	byColumn := map[string]int{}
	for i := 0; i < t.NumField(); i++ {
		if col, ok := t.Field(i).Tag.Lookup("sql"); ok {
			byColumn[col] = i
		}
	}
	return &Scanner[T]{byColumn: byColumn}
}

// scan all rows in pgx.Rows and convert to []T
func (s *Scanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	columns := rows.FieldDescriptions()
	fields := make([]int, len(columns))
	for nth, fd := range columns {
		idx, ok := s.byColumn[string(fd.Name)]
		if !ok {
			return nil, fmt.Errorf(
				`field for column "%s" (%s) is not found in type "%T"`,
				fd.Name, oidName(fd.DataTypeOID), *new(T),
			)
		}
		fields[nth] = idx
	}

	ret := []T{}
	for rows.Next() {
		elem := new(T)
		re := reflect.ValueOf(elem).Elem()
		dest := make([]interface{}, len(fields))
		for nth, idx := range fields {
			dest[nth] = re.Field(idx).Addr().Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ret = append(ret, *elem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// scan all rows in response of query.
func (s *Scanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...interface{}) ([]T, error) {
	rows, err := conn.Query(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.ScanAll(rows)
}

var connInfo = pgtype.NewConnInfo()

func oidName(oid uint32) string {
	if dt, ok := connInfo.DataTypeForOID(oid); ok {
		return dt.Name
	}
	return fmt.Sprintf("oid %d", oid)
}
