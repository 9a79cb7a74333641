// Package conditions evaluates segment-filter predicates against flattened
// attribute maps. The operator vocabulary is shared with segment filters
// elsewhere in the product, so the comparison semantics here must not drift.
package conditions

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supported operators.
const (
	OperatorEquals             = "equals"
	OperatorNotEquals          = "not_equals"
	OperatorContains           = "contains"
	OperatorNotContains        = "not_contains"
	OperatorGreaterThan        = "greater_than"
	OperatorGreaterThanOrEqual = "greater_than_or_equal"
	OperatorLessThan           = "less_than"
	OperatorLessThanOrEqual    = "less_than_or_equal"
	OperatorExists             = "exists"
	OperatorNotExists          = "not_exists"
	OperatorWithin             = "within"
)

var knownOperators = map[string]bool{
	OperatorEquals:             true,
	OperatorNotEquals:          true,
	OperatorContains:           true,
	OperatorNotContains:        true,
	OperatorGreaterThan:        true,
	OperatorGreaterThanOrEqual: true,
	OperatorLessThan:           true,
	OperatorLessThanOrEqual:    true,
	OperatorExists:             true,
	OperatorNotExists:          true,
	OperatorWithin:             true,
}

// KnownOperator reports whether the operator is part of the shared filter
// vocabulary. Definition editing rejects unknown operators so evaluation
// never sees them.
func KnownOperator(operator string) bool {
	return knownOperators[operator]
}

// Condition is a single predicate over one attribute.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Evaluate applies the condition against the attribute map. It is pure: no
// side effects, no clock access except for the within operator. An absent
// field behaves as a non-match for every operator except not_exists.
func Evaluate(cond Condition, attrs map[string]any) (bool, error) {
	value, present := attrs[cond.Field]

	switch cond.Operator {
	case OperatorExists:
		return present && value != nil, nil
	case OperatorNotExists:
		return !present || value == nil, nil
	}

	if !present || value == nil {
		// Absent attributes never match; not_equals and not_contains are
		// vacuously true, matching segment-filter behavior.
		return cond.Operator == OperatorNotEquals || cond.Operator == OperatorNotContains, nil
	}

	switch cond.Operator {
	case OperatorEquals:
		return valuesEqual(value, cond.Value), nil
	case OperatorNotEquals:
		return !valuesEqual(value, cond.Value), nil
	case OperatorContains:
		return valueContains(value, cond.Value), nil
	case OperatorNotContains:
		return !valueContains(value, cond.Value), nil
	case OperatorGreaterThan, OperatorGreaterThanOrEqual, OperatorLessThan, OperatorLessThanOrEqual:
		return compareOrdered(cond.Operator, value, cond.Value)
	case OperatorWithin:
		return within(value, cond.Value, cond.Unit)
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

// valuesEqual compares numerically when both sides are numeric, otherwise
// by string representation. JSON decoding turns all numbers into float64,
// so 5 and 5.0 must compare equal.
func valuesEqual(left, right any) bool {
	leftNum, leftOk := toFloat(left)
	rightNum, rightOk := toFloat(right)

	if leftOk && rightOk {
		return leftNum == rightNum
	}

	return toString(left) == toString(right)
}

func valueContains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}

		return false
	default:
		return strings.Contains(toString(haystack), toString(needle))
	}
}

func compareOrdered(operator string, left, right any) (bool, error) {
	leftNum, leftOk := toFloat(left)
	rightNum, rightOk := toFloat(right)

	var cmp int

	if leftOk && rightOk {
		switch {
		case leftNum < rightNum:
			cmp = -1
		case leftNum > rightNum:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(toString(left), toString(right))
	}

	switch operator {
	case OperatorGreaterThan:
		return cmp > 0, nil
	case OperatorGreaterThanOrEqual:
		return cmp >= 0, nil
	case OperatorLessThan:
		return cmp < 0, nil
	case OperatorLessThanOrEqual:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unknown comparison operator %q", operator)
	}
}

// within matches when the field's timestamp falls inside the trailing
// window of value*unit ending now.
func within(value, amount any, unit string) (bool, error) {
	ts, err := parseTime(value)
	if err != nil {
		return false, err
	}

	amountNum, ok := toFloat(amount)
	if !ok {
		return false, fmt.Errorf("within amount %v is not numeric", amount)
	}

	var per time.Duration

	switch unit {
	case "minutes":
		per = time.Minute
	case "hours":
		per = time.Hour
	case "days":
		per = 24 * time.Hour
	default:
		return false, fmt.Errorf("unknown within unit %q", unit)
	}

	window := time.Duration(amountNum * float64(per))

	return ts.After(time.Now().Add(-window)), nil
}

func parseTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, nil
			}
		}

		return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", v)
	case float64:
		// Epoch seconds, the shape JSON numbers arrive in.
		return time.Unix(int64(v), 0), nil
	case int64:
		return time.Unix(v, 0), nil
	default:
		return time.Time{}, fmt.Errorf("cannot parse %T as timestamp", value)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		num, err := strconv.ParseFloat(v, 64)

		return num, err == nil
	default:
		return 0, false
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}
