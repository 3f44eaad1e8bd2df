package dispatch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ArgKind is the type of one positional argument in a capability schema.
type ArgKind int

const (
	ArgPath ArgKind = iota + 1
	ArgNumber
	ArgString
	ArgParams
)

func (k ArgKind) String() string {
	switch k {
	case ArgPath:
		return "path"
	case ArgNumber:
		return "number"
	case ArgString:
		return "string"
	case ArgParams:
		return "params"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Arg is a parsed argument. Exactly one of the value fields is meaningful,
// selected by Kind.
type Arg struct {
	Kind   ArgKind
	Text   string           // ArgPath, ArgString
	Number float64          // ArgNumber
	Params map[string]Value // ArgParams
}

// Value is a scalar inside a parameter block.
type Value struct {
	IsNumber bool
	Number   float64
	Text     string
}

// Float returns the numeric value, or an error for string values.
func (v Value) Float() (float64, error) {
	if !v.IsNumber {
		return 0, fmt.Errorf("expected number, got %q", v.Text)
	}
	return v.Number, nil
}

// Path builds a path argument.
func Path(p string) Arg { return Arg{Kind: ArgPath, Text: p} }

// Number builds a numeric argument.
func Number(n float64) Arg { return Arg{Kind: ArgNumber, Number: n} }

// Params builds a parameter-block argument.
func Params(p map[string]Value) Arg { return Arg{Kind: ArgParams, Params: p} }

// ParamValue converts raw configuration text to a Value, preferring a
// number when the text parses as one.
func ParamValue(raw string) Value {
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return Value{IsNumber: true, Number: f}
	}
	return Value{Text: raw}
}

// Format renders a call in the canonical syntax accepted by Parse. Parameter
// keys are sorted so that equal calls always render to equal strings.
func Format(name string, args ...Arg) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		switch a.Kind {
		case ArgPath, ArgString:
			b.WriteString(strconv.Quote(a.Text))
		case ArgNumber:
			b.WriteString(formatNumber(a.Number))
		case ArgParams:
			keys := make([]string, 0, len(a.Params))
			for k := range a.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			b.WriteByte('{')
			for j, k := range keys {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(k)
				b.WriteString(": ")
				v := a.Params[k]
				if v.IsNumber {
					b.WriteString(formatNumber(v.Number))
				} else {
					b.WriteString(strconv.Quote(v.Text))
				}
			}
			b.WriteByte('}')
		}
	}
	b.WriteByte(')')
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
