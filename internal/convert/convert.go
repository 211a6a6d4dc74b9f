// Package convert turns captured text fields into typed reading values
// through a closed, declared set of deterministic operations. It is
// deliberately not an expression evaluator: configuration data can scale,
// offset, divide, round, derive ratios, and normalize strings, and nothing
// else.
package convert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Target value types.
const (
	TypeFloat  = "float"
	TypeInt    = "int"
	TypeString = "string"
)

// Supported operation names.
const (
	OpScale  = "scale"
	OpOffset = "offset"
	OpDivide = "divide"
	OpRound  = "round"
	OpRatio  = "ratio"
	OpTrim   = "trim"
	OpLower  = "lower"
)

// Op is one declared conversion step. Which fields are meaningful depends
// on Op: scale/offset/divide use By, round uses Decimals, ratio uses
// Numerator/Denominator/Percent.
type Op struct {
	Op          string  `yaml:"op"`
	By          float64 `yaml:"by,omitempty"`
	Decimals    int     `yaml:"decimals,omitempty"`
	Numerator   string  `yaml:"numerator,omitempty"`
	Denominator string  `yaml:"denominator,omitempty"`
	Percent     bool    `yaml:"percent,omitempty"`
}

// Validate checks a step list against the pattern's capture groups and the
// target's declared type. Violations are configuration errors surfaced at
// registry load, never at collection time.
func Validate(steps []Op, groups []string, targetType string) error {
	switch targetType {
	case TypeFloat, TypeInt, TypeString:
	default:
		return fmt.Errorf("unknown target type %q", targetType)
	}

	for i, s := range steps {
		switch s.Op {
		case OpScale, OpOffset:
			if targetType == TypeString {
				return fmt.Errorf("step %d: %s not applicable to string target", i, s.Op)
			}
		case OpDivide:
			if targetType == TypeString {
				return fmt.Errorf("step %d: divide not applicable to string target", i)
			}
			if s.By == 0 {
				return fmt.Errorf("step %d: divide by zero literal", i)
			}
		case OpRound:
			if targetType == TypeString {
				return fmt.Errorf("step %d: round not applicable to string target", i)
			}
			if s.Decimals < 0 {
				return fmt.Errorf("step %d: negative round decimals", i)
			}
		case OpRatio:
			if targetType == TypeString {
				return fmt.Errorf("step %d: ratio not applicable to string target", i)
			}
			if !hasGroup(groups, s.Numerator) {
				return fmt.Errorf("step %d: ratio numerator %q is not a capture group", i, s.Numerator)
			}
			if !hasGroup(groups, s.Denominator) {
				return fmt.Errorf("step %d: ratio denominator %q is not a capture group", i, s.Denominator)
			}
		case OpTrim, OpLower:
			if targetType != TypeString {
				return fmt.Errorf("step %d: %s only applies to string targets", i, s.Op)
			}
		default:
			return fmt.Errorf("step %d: unknown operation %q", i, s.Op)
		}
	}
	return nil
}

// Apply runs the step list over the record's field and coerces the result to
// the target type. Unparsable numeric text and zero-valued ratio
// denominators fail the single reading; the caller isolates that failure
// from sibling readings.
func Apply(steps []Op, record map[string]string, field, targetType string) (any, error) {
	if targetType == TypeString {
		v, ok := record[field]
		if !ok {
			return nil, fmt.Errorf("field %q missing from record", field)
		}
		for _, s := range steps {
			switch s.Op {
			case OpTrim:
				v = strings.TrimSpace(v)
			case OpLower:
				v = strings.ToLower(v)
			}
		}
		return v, nil
	}

	raw, ok := record[field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from record", field)
	}
	acc, err := parseNumber(raw)
	if err != nil {
		return nil, err
	}

	for _, s := range steps {
		switch s.Op {
		case OpScale:
			acc *= s.By
		case OpOffset:
			acc += s.By
		case OpDivide:
			acc /= s.By
		case OpRound:
			acc = roundTo(acc, s.Decimals)
		case OpRatio:
			num, err := parseNumber(record[s.Numerator])
			if err != nil {
				return nil, fmt.Errorf("ratio numerator %q: %w", s.Numerator, err)
			}
			den, err := parseNumber(record[s.Denominator])
			if err != nil {
				return nil, fmt.Errorf("ratio denominator %q: %w", s.Denominator, err)
			}
			if den == 0 {
				return nil, fmt.Errorf("ratio denominator %q is zero", s.Denominator)
			}
			acc = num / den
			if s.Percent {
				acc *= 100
			}
		}
	}

	if targetType == TypeInt {
		return int64(math.Round(acc)), nil
	}
	return acc, nil
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q as number: %w", s, err)
	}
	return v, nil
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func hasGroup(groups []string, name string) bool {
	for _, g := range groups {
		if g == name {
			return true
		}
	}
	return false
}
