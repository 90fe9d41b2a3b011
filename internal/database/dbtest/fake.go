// Package dbtest provides a scripted in-memory database.DB for repository tests.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/spigell/collab-matcher/internal/database"
)

type Call struct {
	Query string
	Args  []any
}

type result struct {
	fragment string
	rows     [][]any
	err      error
}

// DB answers queries with the first scripted result whose fragment the SQL
// contains. Exec calls succeed with one affected row unless OnExec says otherwise.
type DB struct {
	mu      sync.Mutex
	results []result

	OnExec  func(Call) (int64, error)
	PingErr error

	Execs     []Call
	Queries   []Call
	Begins    int
	Commits   int
	Rollbacks int
}

func New() *DB {
	return &DB{}
}

// Returns scripts rows for queries containing fragment.
func (d *DB) Returns(fragment string, rows ...[]any) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, result{fragment: fragment, rows: rows})
	return d
}

// Fails scripts an error for queries containing fragment.
func (d *DB) Fails(fragment string, err error) *DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, result{fragment: fragment, err: err})
	return d
}

// ExecsMatching returns the recorded Exec calls whose SQL contains fragment.
func (d *DB) ExecsMatching(fragment string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Execs {
		if strings.Contains(c.Query, fragment) {
			out = append(out, c)
		}
	}
	return out
}

func (d *DB) Ping(context.Context) error { return d.PingErr }

func (d *DB) Close() error { return nil }

func (d *DB) Exec(_ context.Context, query string, args ...any) (int64, error) {
	call := Call{Query: query, Args: args}
	d.mu.Lock()
	d.Execs = append(d.Execs, call)
	onExec := d.OnExec
	d.mu.Unlock()

	if onExec != nil {
		return onExec(call)
	}
	return 1, nil
}

func (d *DB) Query(_ context.Context, query string, args ...any) (database.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Queries = append(d.Queries, Call{Query: query, Args: args})

	for _, r := range d.results {
		if strings.Contains(query, r.fragment) {
			if r.err != nil {
				return nil, r.err
			}
			return &Rows{rows: r.rows, pos: -1}, nil
		}
	}
	return &Rows{pos: -1}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return row{err: err}
	}
	r := rows.(*Rows)
	if len(r.rows) == 0 {
		return row{err: database.ErrNoRows}
	}
	return row{values: r.rows[0]}
}

func (d *DB) Begin(context.Context) (database.Tx, error) {
	d.mu.Lock()
	d.Begins++
	d.mu.Unlock()
	return &Tx{db: d}, nil
}

// Tx shares the scripted results of its DB.
type Tx struct {
	db   *DB
	done bool
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return t.db.Exec(ctx, query, args...)
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	return t.db.Query(ctx, query, args...)
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return t.db.QueryRow(ctx, query, args...)
}

func (t *Tx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.done = true
	t.db.Commits++
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.db.Rollbacks++
	return nil
}

type Rows struct {
	rows [][]any
	pos  int
}

func (r *Rows) Close() {}

func (r *Rows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *Rows) Scan(dest ...any) error {
	return scan(r.rows[r.pos], dest)
}

func (r *Rows) Err() error { return nil }

type row struct {
	values []any
	err    error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scan(r.values, dest)
}

type scanner interface {
	Scan(src any) error
}

func scan(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("dbtest: %d values for %d destinations", len(values), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("dbtest: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	target := dv.Elem()
	if src == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case target.Kind() == reflect.Pointer && sv.Type().AssignableTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(sv)
		target.Set(p)
	default:
		if s, ok := dest.(scanner); ok {
			return s.Scan(src)
		}
		return fmt.Errorf("cannot assign %T to %T", src, dest)
	}
	return nil
}
