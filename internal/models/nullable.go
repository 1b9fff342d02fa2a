package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// F64 returns a pointer to v, or nil when v is NaN or infinite.
func F64(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Float dereferences p, returning def when p is nil.
func Float(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// NullableFloat decodes a JSON number, a numeric string or null.
// Values that cannot be read as a finite number decode as null rather than
// failing, so one malformed cell never rejects a whole extract.
type NullableFloat struct {
	Value float64
	Valid bool // true if Value is not null
	Set   bool // true if field was present in JSON
}

// UnmarshalJSON implements custom JSON unmarshaling for NullableFloat.
func (nf *NullableFloat) UnmarshalJSON(data []byte) error {
	nf.Set = true
	nf.Valid = false
	nf.Value = 0

	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	nf.Value = v
	nf.Valid = true
	return nil
}

// MarshalJSON implements custom JSON marshaling for NullableFloat.
func (nf NullableFloat) MarshalJSON() ([]byte, error) {
	if !nf.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nf.Value)
}

// ToPtr converts NullableFloat to *float64.
func (nf NullableFloat) ToPtr() *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Value
	return &v
}

// NullableString decodes a JSON string, a bare number or null. Numbers keep
// their literal text.
type NullableString struct {
	Value string
	Valid bool
	Set   bool
}

// UnmarshalJSON implements custom JSON unmarshaling for NullableString.
func (ns *NullableString) UnmarshalJSON(data []byte) error {
	ns.Set = true

	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		ns.Valid = false
		ns.Value = ""
		return nil
	}

	if len(data) > 0 && data[0] != '"' {
		ns.Value = string(data)
		ns.Valid = true
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ns.Value = s
	ns.Valid = true
	return nil
}

// MarshalJSON implements custom JSON marshaling for NullableString.
func (ns NullableString) MarshalJSON() ([]byte, error) {
	if !ns.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(ns.Value)
}

// dateLayouts are tried in order when reading a date cell.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	DateLayout,
}

// ParseTimestamp reads a timestamp or calendar date. ok is false when no
// layout matches.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate reads a timestamp or calendar date and returns its wall-clock
// date.
func ParseDate(s string) (time.Time, bool) {
	t, ok := ParseTimestamp(s)
	if !ok {
		return time.Time{}, false
	}
	return Day(t), true
}

// NullableTime decodes a date or timestamp string. Unparseable values
// decode as null.
type NullableTime struct {
	Value time.Time
	Valid bool
	Set   bool
}

// UnmarshalJSON implements custom JSON unmarshaling for NullableTime.
func (nt *NullableTime) UnmarshalJSON(data []byte) error {
	nt.Set = true
	nt.Valid = false
	nt.Value = time.Time{}

	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if t, ok := ParseDate(s); ok {
		nt.Value = t
		nt.Valid = true
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for NullableTime.
func (nt NullableTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Value.Format(DateLayout))
}

// ToPtr converts NullableTime to *time.Time.
func (nt NullableTime) ToPtr() *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Value
	return &v
}
