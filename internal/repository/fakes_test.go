package repository

import (
	"context"
	"database/sql"
	"reflect"

	"matchengine/internal/database"
)

type execCall struct {
	query string
	args  []any
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) {
			break
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

// fakeDB records statements and answers QueryRow from a queue of rows.
type fakeDB struct {
	execs     []execCall
	rows      []fakeRow
	queries   int
	sent      []execCall
	execErr   error
	committed bool
	rolled    bool
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }
func (f *fakeDB) SQLDB() *sql.DB             { return nil }

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (int64, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	if f.execErr != nil {
		return 0, f.execErr
	}
	return 1, nil
}

func (f *fakeDB) Query(_ context.Context, query string, args ...any) (database.Rows, error) {
	f.queries++
	f.sent = append(f.sent, execCall{query: query, args: args})
	return &fakeRows{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...any) database.Row {
	f.queries++
	f.sent = append(f.sent, execCall{query: query, args: args})
	if len(f.rows) == 0 {
		return fakeRow{err: database.ErrNoRows}
	}
	r := f.rows[0]
	f.rows = f.rows[1:]
	return r
}

func (f *fakeDB) Begin(context.Context) (database.Tx, error) {
	return &fakeTx{db: f}, nil
}

type fakeTx struct {
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	return t.db.Exec(ctx, q, args...)
}
func (t *fakeTx) Query(ctx context.Context, q string, args ...any) (database.Rows, error) {
	return t.db.Query(ctx, q, args...)
}
func (t *fakeTx) QueryRow(ctx context.Context, q string, args ...any) database.Row {
	return t.db.QueryRow(ctx, q, args...)
}
func (t *fakeTx) Commit(context.Context) error   { t.db.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.db.rolled = true; return nil }

type fakeRows struct{}

func (r *fakeRows) Close()            {}
func (r *fakeRows) Next() bool        { return false }
func (r *fakeRows) Scan(...any) error { return nil }
func (r *fakeRows) Err() error        { return nil }
