package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/internal/privacy"
)

type itemBody struct {
	Data any `json:"data"`
}

type listBody struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

func jsonResult(body any) (*mcp.CallToolResult, error) {
	text, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.TextResult(string(text)), nil
}

// itemResult wraps a single row; a nil row renders as "data": null.
func itemResult[T any](row *T) (*mcp.CallToolResult, error) {
	if row == nil {
		return jsonResult(itemBody{Data: nil})
	}
	return jsonResult(itemBody{Data: row})
}

func listResult[T any](rows []T) (*mcp.CallToolResult, error) {
	if rows == nil {
		rows = []T{}
	}
	return jsonResult(listBody{Data: rows, Count: len(rows)})
}

// failure turns a store error into a tool error block. Unreachable stores
// and abandoned calls are returned as errors so the transport fails the call.
func failure(tool string, err error) (*mcp.CallToolResult, error) {
	if db.IsUnavailable(err) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%s: %w", tool, err)
	}

	msg := err.Error()
	var se *db.StoreError
	if errors.As(err, &se) {
		msg = se.Message
	}
	log.Warn().Str("error", privacy.RedactError(err)).Str("tool", tool).Msg("Tool store query failed")
	return mcp.ErrorResult("Error: " + privacy.Redact(msg)), nil
}

func first[T any](rows []T) *T {
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}
