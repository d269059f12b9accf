package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stubPool satisfies PgxPool for tests without a live database. Row payloads
// are supplied as []any slices whose element types must match the scan
// destinations.
type stubPool struct {
	execSQL  []string
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error

	queuedBatch  *pgx.Batch
	batchResults pgx.BatchResults

	querySQL  []string
	queryArgs [][]any
	rowsData  [][]any
	rowsQueue [][][]any
	queryErr  error

	queryRowSQL []string
	rowQueue    []stubRow
}

func (s *stubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	s.execArgs = append(s.execArgs, args)
	return s.execTag, s.execErr
}

func (s *stubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.queuedBatch = b
	if s.batchResults != nil {
		return s.batchResults
	}
	return &stubBatchResults{}
}

func (s *stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.querySQL = append(s.querySQL, sql)
	s.queryArgs = append(s.queryArgs, args)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	data := s.rowsData
	if len(s.rowsQueue) > 0 {
		data = s.rowsQueue[0]
		s.rowsQueue = s.rowsQueue[1:]
	}
	return &stubRows{data: data}, nil
}

func (s *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.queryRowSQL = append(s.queryRowSQL, sql)
	if len(s.rowQueue) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	row := s.rowQueue[0]
	s.rowQueue = s.rowQueue[1:]
	return row
}

type stubRow struct {
	data []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > len(r.data) {
		return fmt.Errorf("scan wants %d values, row has %d", len(dest), len(r.data))
	}
	for i, d := range dest {
		if err := assign(d, r.data[i]); err != nil {
			return err
		}
	}
	return nil
}

type stubBatchResults struct {
	execCalls int
	execErr   error
	rowQueue  []stubRow
}

func (s *stubBatchResults) Exec() (pgconn.CommandTag, error) {
	s.execCalls++
	return pgconn.CommandTag{}, s.execErr
}

func (s *stubBatchResults) Query() (pgx.Rows, error) { return &stubRows{}, nil }

func (s *stubBatchResults) QueryRow() pgx.Row {
	if len(s.rowQueue) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	row := s.rowQueue[0]
	s.rowQueue = s.rowQueue[1:]
	return row
}

func (s *stubBatchResults) Close() error { return nil }

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close() {}

func (r *stubRows) Err() error { return nil }

func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	return stubRow{data: r.data[r.idx-1]}.Scan(dest...)
}

func (r *stubRows) Values() ([]any, error) { return nil, nil }

func (r *stubRows) RawValues() [][]byte { return nil }

func (r *stubRows) Conn() *pgx.Conn { return nil }

func assign(dest, val any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("scan destination must be a non-nil pointer, got %T", dest)
	}
	elem := dv.Elem()
	if val == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	vv := reflect.ValueOf(val)
	if !vv.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("cannot scan %T into %T", val, dest)
	}
	elem.Set(vv)
	return nil
}
