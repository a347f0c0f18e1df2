package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONValue carries an arbitrary JSON document in and out of a jsonb column.
// The zero value scans and marshals as JSON null.
type JSONValue struct {
	V any
}

func NewJSONValue(v any) JSONValue {
	return JSONValue{V: v}
}

func (j JSONValue) Value() (driver.Value, error) {
	return json.Marshal(j.V)
}

func (j *JSONValue) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	case nil:
		j.V = nil
		return nil
	}
	return fmt.Errorf("cannot scan %T into JSONValue", src)
}

func (j JSONValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

func (j *JSONValue) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.V)
}
