// Package models contains domain models for placefeed.
package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/lib/pq"
)

// StringList is an ordered text[] column.
// Postgres returns the array literal form; PostgREST returns a JSON array.
type StringList []string

// Scan implements sql.Scanner for StringList.
func (s *StringList) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}

	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("StringList: %w", err)
	}
	*s = StringList(arr)
	return nil
}

// Value implements driver.Valuer for StringList.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return pq.StringArray(s).Value()
}

// JSONMap is a free-form jsonb object column.
type JSONMap map[string]any

// Scan implements sql.Scanner for JSONMap.
func (j *JSONMap) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONMap: unsupported type %T", src)
	}

	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONMap.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
