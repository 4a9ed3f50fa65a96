// Package supabase provides a db.Client that reads through a Supabase
// project's PostgREST endpoint using the service role key.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/pkg/models"
)

// Config holds the Supabase project settings.
type Config struct {
	URL    string // Project URL, e.g. https://xyz.supabase.co
	Key    string // Service role key
	Schema string // Optional; defaults to public
}

// Client is a db.Client backed by supabase-go.
type Client struct {
	sb *supabase.Client
}

var _ db.Client = (*Client)(nil)

// New creates a Supabase-backed client. It does not contact the project.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errors.New("supabase: url and service role key are required")
	}

	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	sb, err := supabase.NewClient(cfg.URL, cfg.Key, &supabase.ClientOptions{Schema: schema})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Client{sb: sb}, nil
}

// Select implements db.Client.
//
// postgrest-go requests carry no context, so the request runs in its own
// goroutine and the response is decoded only if ctx is still live.
func (c *Client) Select(ctx context.Context, q db.Query, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fb := buildRequest(c.sb.From(q.Table), q)

	type response struct {
		err  error
		body []byte
	}
	done := make(chan response, 1)
	go func() {
		body, _, err := fb.Execute()
		done <- response{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return db.Unavailable(ctx.Err())
		}
		return ctx.Err()
	case resp := <-done:
		if resp.err != nil {
			return classify(resp.err)
		}
		if err := json.Unmarshal(resp.body, dest); err != nil {
			return &db.StoreError{Message: fmt.Sprintf("decode %s rows: %v", q.Table, err)}
		}
		return nil
	}
}

// Ping issues the cheapest read the service role can make.
func (c *Client) Ping(ctx context.Context) error {
	var rows []struct {
		ID string `json:"id"`
	}
	return c.Select(ctx, db.Query{
		Table:   models.ProfilesTable,
		Columns: []string{"id"},
		Limit:   1,
	}, &rows)
}

func buildRequest(qb *postgrest.QueryBuilder, q db.Query) *postgrest.FilterBuilder {
	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ",")
	}
	fb := qb.Select(columns, "", false)

	for _, f := range q.Filters {
		switch f.Op {
		case db.OpIn:
			values, _ := f.Value.([]string)
			fb = fb.In(f.Column, values)
		case db.OpILike:
			fb = fb.Ilike(f.Column, fmt.Sprint(f.Value))
		default:
			fb = fb.Eq(f.Column, fmt.Sprint(f.Value))
		}
	}

	if q.Order != nil {
		fb = fb.Order(q.Order.Column, &postgrest.OrderOpts{Ascending: !q.Order.Desc})
	}
	if q.Limit > 0 {
		fb = fb.Limit(q.Limit, "")
	}
	return fb
}

// PostgREST errors surface from postgrest-go as "(code) message".
var restError = regexp.MustCompile(`^\(([0-9A-Za-z]*)\) (.*)$`)

func classify(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return db.Unavailable(err)
	}

	msg := err.Error()
	if m := restError.FindStringSubmatch(msg); m != nil {
		return &db.StoreError{Code: m[1], Message: m[2]}
	}
	return &db.StoreError{Message: msg}
}
