package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one named value inside a record. Field order follows the wire
// payload but lookups always go by name.
type Field struct {
	Name  string
	Value Value
}

// Record is a generic decoded remote record: a model tag plus an ordered
// field list. Records are immutable once constructed; reconciliation always
// replaces whole records, never patches field slices in place.
type Record struct {
	Model  string
	Fields []Field
}

// Field returns the named field value. The first match wins; indexers do not
// emit duplicate names.
func (r *Record) Field(name string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Uint extracts a named unsigned integer field.
func (r *Record) Uint(name string) (uint64, bool) {
	v, ok := r.Field(name)
	if !ok {
		return 0, false
	}
	return v.AsUint()
}

// Decimal extracts a named integer field as a decimal string.
func (r *Record) Decimal(name string) (string, bool) {
	v, ok := r.Field(name)
	if !ok {
		return "", false
	}
	return v.AsDecimal()
}

// Bool extracts a named boolean field.
func (r *Record) Bool(name string) (bool, bool) {
	v, ok := r.Field(name)
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// Text extracts a named UTF-8 string field.
func (r *Record) Text(name string) (string, bool) {
	v, ok := r.Field(name)
	if !ok {
		return "", false
	}
	return v.AsText()
}

// Felt extracts a named field element as a 0x-prefixed hex string.
func (r *Record) Felt(name string) (string, bool) {
	v, ok := r.Field(name)
	if !ok {
		return "", false
	}
	return v.AsFelt()
}

// Hex extracts any integer-like named field as 0x-prefixed hex.
func (r *Record) Hex(name string) (string, bool) {
	v, ok := r.Field(name)
	if !ok {
		return "", false
	}
	return v.AsHex()
}

// Nested extracts a named sub-record.
func (r *Record) Nested(name string) (*Record, bool) {
	v, ok := r.Field(name)
	if !ok {
		return nil, false
	}
	return v.AsRecord()
}

type wireRecord struct {
	Model  string            `json:"model"`
	Fields []json.RawMessage `json:"fields"`
}

// UnmarshalJSON decodes the indexer's record frame. A single malformed field
// poisons only this record; the caller decides whether to skip it.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("entity: decode record frame: %w", err)
	}
	if strings.TrimSpace(wire.Model) == "" {
		return fmt.Errorf("entity: record frame missing model tag")
	}
	fields := make([]Field, 0, len(wire.Fields))
	for i, raw := range wire.Fields {
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &named); err != nil {
			return fmt.Errorf("entity: decode field %d of %s: %w", i, wire.Model, err)
		}
		if named.Name == "" {
			return fmt.Errorf("entity: field %d of %s missing name", i, wire.Model)
		}
		var v Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("entity: decode field %q of %s: %w", named.Name, wire.Model, err)
		}
		fields = append(fields, Field{Name: named.Name, Value: v})
	}
	r.Model = wire.Model
	r.Fields = fields
	return nil
}
