// Package dbtest provides an in-memory db.Client for tests.
//
// Rows are held as decoded JSON objects, so seeded structs must use the
// same json tags as the store columns (pkg/models does). Every Select is
// recorded, which lets tests assert how many round-trips a tool made.
package dbtest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/placefeed/internal/db"
)

// Store is an in-memory db.Client.
type Store struct {
	tables   map[string][]map[string]any
	failures map[string]error
	calls    []db.Query
	pingErr  error
	mu       sync.Mutex
}

var _ db.Client = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tables:   make(map[string][]map[string]any),
		failures: make(map[string]error),
	}
}

// Seed appends rows to table. rows must be a slice of JSON-encodable values.
func (s *Store) Seed(table string, rows any) {
	data, err := json.Marshal(rows)
	if err != nil {
		panic(fmt.Sprintf("dbtest: marshal seed rows: %v", err))
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		panic(fmt.Sprintf("dbtest: seed rows must be a slice of objects: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], decoded...)
}

// CreateTable registers an empty table so that selects against it succeed.
func (s *Store) CreateTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = []map[string]any{}
	}
}

// FailOn makes every select against table return err.
func (s *Store) FailOn(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[table] = err
}

// FailPing makes Ping return err.
func (s *Store) FailPing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Calls returns every query issued so far, in order.
func (s *Store) Calls() []db.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Query, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many selects hit table.
func (s *Store) CallCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.calls {
		if q.Table == table {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded queries.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Ping implements db.Client.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

// Select implements db.Client.
func (s *Store) Select(ctx context.Context, q db.Query, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.calls = append(s.calls, q)
	if err := s.failures[q.Table]; err != nil {
		s.mu.Unlock()
		return err
	}
	rows, ok := s.tables[q.Table]
	if !ok {
		s.mu.Unlock()
		return &db.StoreError{Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", q.Table)}
	}
	snapshot := make([]map[string]any, len(rows))
	copy(snapshot, rows)
	s.mu.Unlock()

	matched := make([]map[string]any, 0, len(snapshot))
	for _, row := range snapshot {
		ok, err := matches(row, q.Filters)
		if err != nil {
			return err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Desc
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][col], matched[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	projected, err := project(matched, q.Columns)
	if err != nil {
		return err
	}

	data, err := json.Marshal(projected)
	if err != nil {
		return fmt.Errorf("dbtest: marshal result: %w", err)
	}
	return json.Unmarshal(data, dest)
}

func matches(row map[string]any, filters []db.Filter) (bool, error) {
	for _, f := range filters {
		v, present := row[f.Column]
		if !present && len(row) > 0 {
			return false, unknownColumn(f.Column)
		}
		if v == nil {
			return false, nil
		}
		switch f.Op {
		case db.OpEq:
			if fmt.Sprint(v) != fmt.Sprint(f.Value) {
				return false, nil
			}
		case db.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return false, &db.StoreError{Message: fmt.Sprintf("in filter on %s needs []string, got %T", f.Column, f.Value)}
			}
			found := false
			for _, want := range values {
				if fmt.Sprint(v) == want {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case db.OpILike:
			pattern, ok := f.Value.(string)
			if !ok {
				return false, &db.StoreError{Message: fmt.Sprintf("ilike filter on %s needs a string, got %T", f.Column, f.Value)}
			}
			if !likePattern(pattern).MatchString(fmt.Sprint(v)) {
				return false, nil
			}
		default:
			return false, &db.StoreError{Message: fmt.Sprintf("unsupported operator %q", f.Op)}
		}
	}
	return true, nil
}

// likePattern translates a LIKE pattern with backslash escapes into a regexp.
func likePattern(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// compare orders two decoded JSON values. nil sorts after everything.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	if af, ok := a.(float64); ok {
		if bf, ok := b.(float64); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return at.Compare(bt)
		}
	}
	return strings.Compare(as, bs)
}

func project(rows []map[string]any, columns []string) ([]map[string]any, error) {
	if len(columns) == 0 {
		return rows, nil
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		picked := make(map[string]any, len(columns))
		for _, col := range columns {
			v, ok := row[col]
			if !ok {
				return nil, unknownColumn(col)
			}
			picked[col] = v
		}
		out = append(out, picked)
	}
	return out, nil
}

func unknownColumn(col string) error {
	return &db.StoreError{Code: "42703", Message: fmt.Sprintf("column %q does not exist", col)}
}
