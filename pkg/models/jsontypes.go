package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// JSONFloatMap stores a string-keyed float map as a JSON text column.
type JSONFloatMap map[string]float64

// Scan implements sql.Scanner for JSONFloatMap.
func (j *JSONFloatMap) Scan(src any) error {
	return scanJSON(src, j)
}

// Value implements driver.Valuer for JSONFloatMap.
func (j JSONFloatMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// JSONIntKeyMap stores an int-keyed float map (hours, weekdays) as a
// JSON text column. JSON object keys are strings; encoding handles the
// int conversion both ways.
type JSONIntKeyMap map[int]float64

// Scan implements sql.Scanner for JSONIntKeyMap.
func (j *JSONIntKeyMap) Scan(src any) error {
	return scanJSON(src, j)
}

// Value implements driver.Valuer for JSONIntKeyMap.
func (j JSONIntKeyMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func scanJSON(src, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("json column: unsupported type %T", src)
	}
}
