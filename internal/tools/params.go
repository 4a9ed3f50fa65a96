package tools

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/thebtf/placefeed/internal/mcp"
)

// Limit bounds.
const (
	DefaultLimit = 10
	MaxLimit     = 20
	minLimit     = 1
)

// Limit is an optional result limit. It accepts any JSON value; anything
// that is not a finite positive number falls back to DefaultLimit.
type Limit struct {
	value float64
	set   bool
}

// UnmarshalJSON never fails. Non-numeric input leaves the limit unset.
func (l *Limit) UnmarshalJSON(data []byte) error {
	*l = Limit{}
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(data)), 64)
	if err == nil {
		l.value = f
		l.set = true
	}
	return nil
}

// Int returns the clamped limit.
func (l Limit) Int() int {
	return ClampLimit(l.value, l.set)
}

// ClampLimit applies the shared limit policy: missing, non-finite or
// non-positive values give DefaultLimit; anything else is floored and
// clamped to [1, MaxLimit].
func ClampLimit(v float64, ok bool) int {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return DefaultLimit
	}
	n := math.Floor(v)
	return int(max(minLimit, min(MaxLimit, n)))
}

// Text is a string argument with surrounding whitespace removed.
type Text string

// UnmarshalJSON accepts only JSON strings.
func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = Text(strings.TrimSpace(s))
	return nil
}

func (t Text) String() string { return string(t) }

type emptyParams struct{}

type idParams struct {
	ID Text `json:"id" validate:"required"`
}

type searchParams struct {
	Query Text  `json:"query" validate:"required,min=1"`
	Limit Limit `json:"limit"`
}

type limitParams struct {
	Limit Limit `json:"limit"`
}

type placePostsParams struct {
	PlaceID Text  `json:"place_id" validate:"required"`
	Limit   Limit `json:"limit"`
}

type userParams struct {
	UserID Text  `json:"user_id" validate:"required"`
	Limit  Limit `json:"limit"`
}

type profileGetParams struct {
	ID       Text `json:"id"`
	Username Text `json:"username"`
}

// Validate requires exactly one lookup key.
func (p profileGetParams) Validate() error {
	switch {
	case p.ID == "" && p.Username == "":
		return &mcp.ValidationError{Field: "id", Reason: "one of id or username is required"}
	case p.ID != "" && p.Username != "":
		return &mcp.ValidationError{Field: "username", Reason: "id and username are mutually exclusive"}
	}
	return nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "description": description}
}

var limitProp = map[string]any{
	"type":        "number",
	"description": "Maximum number of results (1-20, default 10)",
}
