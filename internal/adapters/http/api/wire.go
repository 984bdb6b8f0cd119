package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// flexNumber accepts a JSON number or a numeric string. Anything else,
// including NaN and infinities, decodes as absent.
type flexNumber struct {
	v *float64
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	f.v = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil //nolint:nilerr // malformed strings degrade to absent
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil //nolint:nilerr // non-numeric values degrade to absent
	}
	f.v = &v
	return nil
}

// Ptr returns the value or nil.
func (f flexNumber) Ptr() *float64 { return f.v }

// Positive returns the value when it is > 0, else nil.
func (f flexNumber) Positive() *float64 {
	if f.v == nil || *f.v <= 0 {
		return nil
	}
	return f.v
}

// Int returns the floored value, or def when absent.
func (f flexNumber) Int(def int) int {
	if f.v == nil {
		return def
	}
	return floorInt(*f.v)
}

// IntPtr returns the floored value or nil.
func (f flexNumber) IntPtr() *int {
	if f.v == nil {
		return nil
	}
	n := floorInt(*f.v)
	return &n
}

// floorInt floors v and saturates at the int range.
func floorInt(v float64) int {
	v = math.Floor(v)
	switch {
	case v >= float64(math.MaxInt):
		return math.MaxInt
	case v <= float64(math.MinInt):
		return math.MinInt
	}
	return int(v)
}

// flexTags keeps the elements of a JSON array as raw text. Non-arrays decode as absent.
type flexTags []string

func (t *flexTags) UnmarshalJSON(b []byte) error {
	*t = nil
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil //nolint:nilerr // non-array tags are ignored
	}
	out := make([]string, len(raw))
	for i, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			out[i] = s
		} else {
			out[i] = string(r)
		}
	}
	*t = out
	return nil
}

// flexTime accepts RFC3339 text or epoch milliseconds. Unparseable values decode as zero.
type flexTime struct {
	t time.Time
}

func (ft *flexTime) UnmarshalJSON(b []byte) error {
	ft.t = time.Time{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if json.Unmarshal(b, &s) != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ft.t = t
			return nil
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			ft.t = fromMillis(ms)
		}
		return nil
	}
	if ms, err := strconv.ParseFloat(string(b), 64); err == nil {
		ft.t = fromMillis(ms)
	}
	return nil
}

func fromMillis(ms float64) time.Time {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

// Time returns the parsed timestamp; zero means "use submission time".
func (ft flexTime) Time() time.Time { return ft.t }

// optionalString distinguishes a missing field from an empty one.
type optionalString struct {
	set bool
	v   string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.set, o.v = false, ""
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Non-string scalars are stringified, as a loosely typed client would send them.
		o.set, o.v = true, string(b)
		return nil
	}
	o.set, o.v = true, s
	return nil
}
