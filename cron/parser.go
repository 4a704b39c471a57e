// Package cron parses cron expressions and computes the instants they describe.
//
// Supported layouts:
//
//	min hour dom month dow              (5 fields, fires at second 0)
//	sec min hour dom month dow          (6 fields)
//	sec min hour dom month dow year     (7 fields, year 1970-2099)
//
// Each field accepts *, a single value, a-b ranges, */n, a/n and a-b/n steps and
// comma separated lists. Day-of-month and day-of-week also accept ?, which means
// the same as *. Months and weekdays accept three letter names (JAN, SUN) and
// day-of-week accepts 0-7 where both 0 and 7 are Sunday.
//
// When both day-of-month and day-of-week are restricted a day matches if either
// field matches; otherwise both must match.
package cron

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Deepreo/kronos/errors"
)

var ErrInvalidSyntax = errors.ValidationError(errors.New("invalid cron syntax")).WithCode("INVALID_CRON_SYNTAX")

// starBit marks a field that was given as a bare * or ?.
const starBit = 1 << 63

type bounds struct {
	name     string
	min, max uint
	names    map[string]uint
	question bool
}

var (
	secondBounds = bounds{name: "second", min: 0, max: 59}
	minuteBounds = bounds{name: "minute", min: 0, max: 59}
	hourBounds   = bounds{name: "hour", min: 0, max: 23}
	domBounds    = bounds{name: "day-of-month", min: 1, max: 31, question: true}
	monthBounds  = bounds{name: "month", min: 1, max: 12, names: map[string]uint{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	dowBounds = bounds{name: "day-of-week", min: 0, max: 7, question: true, names: map[string]uint{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
	yearBounds = bounds{name: "year", min: 1970, max: 2099}
)

var descriptors = map[string]string{
	"@yearly":   "0 0 0 1 1 *",
	"@annually": "0 0 0 1 1 *",
	"@monthly":  "0 0 0 1 * *",
	"@weekly":   "0 0 0 * * 0",
	"@daily":    "0 0 0 * * *",
	"@midnight": "0 0 0 * * *",
	"@hourly":   "0 0 * * * *",
}

// Parse compiles expr. Fire times are computed in the location of the time
// passed to Next.
func Parse(expr string) (*Expression, error) {
	return parse(expr, nil)
}

// ParseInLocation compiles expr with fire times computed in loc.
func ParseInLocation(expr string, loc *time.Location) (*Expression, error) {
	return parse(expr, loc)
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) *Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

func parse(expr string, loc *time.Location) (*Expression, error) {
	spec := strings.TrimSpace(expr)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidSyntax)
	}

	if strings.HasPrefix(spec, "@") {
		layout, ok := descriptors[strings.ToLower(spec)]
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized descriptor %q", ErrInvalidSyntax, spec)
		}
		e, err := parse(layout, loc)
		if err != nil {
			return nil, err
		}
		e.expr = spec
		return e, nil
	}

	fields := strings.Fields(spec)
	switch len(fields) {
	case 5:
		fields = append([]string{"0"}, fields...)
	case 6, 7:
	default:
		return nil, fmt.Errorf("%w: expected 5 to 7 fields, found %d in %q", ErrInvalidSyntax, len(fields), spec)
	}

	e := &Expression{expr: spec, location: loc}
	var err error
	if e.second, err = bitsOf(fields[0], secondBounds); err != nil {
		return nil, err
	}
	if e.minute, err = bitsOf(fields[1], minuteBounds); err != nil {
		return nil, err
	}
	if e.hour, err = bitsOf(fields[2], hourBounds); err != nil {
		return nil, err
	}
	if e.dom, err = bitsOf(fields[3], domBounds); err != nil {
		return nil, err
	}
	if e.month, err = bitsOf(fields[4], monthBounds); err != nil {
		return nil, err
	}
	if e.dow, err = bitsOf(fields[5], dowBounds); err != nil {
		return nil, err
	}
	if len(fields) == 7 {
		if e.years, err = yearsOf(fields[6]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func bitsOf(field string, b bounds) (uint64, error) {
	var bits uint64
	set := func(v uint) { bits |= 1 << v }
	if b.name == dowBounds.name {
		set = func(v uint) { bits |= 1 << (v % 7) }
	}
	star, err := parseField(field, b, set)
	if err != nil {
		return 0, err
	}
	if star {
		bits |= starBit
	}
	return bits, nil
}

// yearsOf returns the sorted allowed years, or nil when every year is allowed.
func yearsOf(field string) ([]int, error) {
	seen := map[int]struct{}{}
	star, err := parseField(field, yearBounds, func(v uint) { seen[int(v)] = struct{}{} })
	if err != nil {
		return nil, err
	}
	if star {
		return nil, nil
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func parseField(field string, b bounds, set func(uint)) (bool, error) {
	star := false
	for _, part := range strings.Split(field, ",") {
		s, err := parseRange(part, b, set)
		if err != nil {
			return false, err
		}
		star = star || s
	}
	return star, nil
}

// parseRange handles one list element: *, ?, a, a-b, optionally followed by /step.
func parseRange(expr string, b bounds, set func(uint)) (bool, error) {
	var (
		start, end, step uint
		star             bool
		err              error
	)
	rangeAndStep := strings.Split(expr, "/")
	lowAndHigh := strings.Split(rangeAndStep[0], "-")

	switch lowAndHigh[0] {
	case "*", "?":
		if lowAndHigh[0] == "?" && !b.question {
			return false, fmt.Errorf("%w: '?' is not allowed in the %s field", ErrInvalidSyntax, b.name)
		}
		if len(lowAndHigh) != 1 {
			return false, fmt.Errorf("%w: %q is not a valid %s range", ErrInvalidSyntax, expr, b.name)
		}
		start, end, star = b.min, b.max, true
	default:
		if start, err = parseValue(lowAndHigh[0], b); err != nil {
			return false, err
		}
		switch len(lowAndHigh) {
		case 1:
			end = start
		case 2:
			if end, err = parseValue(lowAndHigh[1], b); err != nil {
				return false, err
			}
		default:
			return false, fmt.Errorf("%w: too many hyphens in %q", ErrInvalidSyntax, expr)
		}
	}

	switch len(rangeAndStep) {
	case 1:
		step = 1
	case 2:
		n, perr := strconv.ParseUint(rangeAndStep[1], 10, 0)
		if perr != nil || n == 0 {
			return false, fmt.Errorf("%w: invalid step %q in %s field", ErrInvalidSyntax, rangeAndStep[1], b.name)
		}
		step = uint(n)
		// "a/n" means a through the field maximum.
		if !star && len(lowAndHigh) == 1 {
			end = b.max
		}
		if step > 1 {
			star = false
		}
	default:
		return false, fmt.Errorf("%w: too many slashes in %q", ErrInvalidSyntax, expr)
	}

	if start > end {
		return false, fmt.Errorf("%w: range start %d is after end %d in %s field", ErrInvalidSyntax, start, end, b.name)
	}
	for v := start; v <= end; v += step {
		set(v)
	}
	return star, nil
}

func parseValue(s string, b bounds) (uint, error) {
	if v, ok := b.names[strings.ToLower(s)]; ok {
		return v, nil
	}
	n, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid %s value", ErrInvalidSyntax, s, b.name)
	}
	v := uint(n)
	if v < b.min || v > b.max {
		return 0, fmt.Errorf("%w: %s value %d out of range [%d, %d]", ErrInvalidSyntax, b.name, v, b.min, b.max)
	}
	return v, nil
}
