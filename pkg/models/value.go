// Package models contains domain types for lemur-engine.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueKind tags the concrete type carried by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a single nullable cell. Null is an explicit kind, never an empty string.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

// Null is the null cell.
var Null = Value{Kind: KindNull}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// IsInteger reports whether the cell is a number with no fractional part.
func (v Value) IsInteger() bool {
	return v.Kind == KindNumber && !math.IsInf(v.Num, 0) && !math.IsNaN(v.Num) && v.Num == math.Trunc(v.Num)
}

// Compare orders nulls first, then by kind, then by natural order within a kind.
func (v Value) Compare(o Value) int {
	return compareValues(v, o)
}

// Interface returns the cell as a plain Go value (nil, string, float64, bool).
func (v Value) Interface() any {
	return v.native()
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.native())
}

// String returns the canonical string form of the cell. Null renders as "".
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// Key is a type-tagged identity used for distinct counting and duplicate detection,
// so the string "1" and the number 1 stay distinct.
func (v Value) Key() string {
	return strconv.Itoa(int(v.Kind)) + ":" + v.String()
}

func (v Value) native() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return nil
	}
}

// UnmarshalJSON accepts JSON scalars. Objects and arrays are kept as their raw text.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '{', '[':
		*v = StringValue(string(data))
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid cell value %s: %w", data, err)
		}
		*v = NumberValue(f)
	}
	return nil
}

func compareValues(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindNumber:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	case KindTime:
		return a.Time.Compare(b.Time)
	case KindBool:
		switch {
		case a.Bool == b.Bool:
			return 0
		case !a.Bool:
			return -1
		}
		return 1
	case KindString:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		}
		return 0
	}
	return 0
}
