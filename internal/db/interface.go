// Package db defines the store boundary used by placefeed tools.
//
// The store is an external relational service. Tools only ever issue
// single-table reads described by a Query: a projection, filter predicates,
// one ordering and a limit. Joins are done in process (see internal/enrich).
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Op is a filter predicate operator.
type Op string

const (
	// OpEq matches rows whose column equals Value.
	OpEq Op = "eq"
	// OpIn matches rows whose column is one of Value ([]string).
	OpIn Op = "in"
	// OpILike matches rows whose column matches the LIKE pattern in Value, case-insensitively.
	OpILike Op = "ilike"
)

// Filter is a single predicate on a column.
type Filter struct {
	Value  any
	Column string
	Op     Op
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In builds a membership filter.
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// ILike builds a case-insensitive LIKE filter. The pattern is passed through as is.
func ILike(column, pattern string) Filter {
	return Filter{Column: column, Op: OpILike, Value: pattern}
}

// Order is a single sort key.
type Order struct {
	Column string
	Desc   bool
}

// Query describes one single-table read.
type Query struct {
	Order   *Order
	Table   string
	Columns []string
	Filters []Filter
	Limit   int
}

// String renders the query for logs and span names.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Table)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s.%s", f.Column, f.Op)
	}
	if q.Order != nil {
		dir := "asc"
		if q.Order.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order=%s.%s", q.Order.Column, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit=%d", q.Limit)
	}
	return b.String()
}

// Client is the store boundary. Select scans matching rows into dest, which
// must be a pointer to a slice of row structs.
type Client interface {
	Select(ctx context.Context, q Query, dest any) error
	Ping(ctx context.Context) error
}

// ErrUnavailable marks failures where the store could not be reached at all.
// These are not recoverable by a tool handler and surface as transport faults.
var ErrUnavailable = errors.New("store unavailable")

// StoreError is a failure reported by a reachable store, such as a bad column
// or a permission error. Tool handlers turn it into an error content block.
type StoreError struct {
	Code    string
	Message string
}

func (e *StoreError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// EscapeLike escapes LIKE metacharacters so s matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Contains builds a pattern matching s anywhere in the column.
func Contains(s string) string {
	return "%" + EscapeLike(s) + "%"
}
