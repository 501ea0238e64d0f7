// Package cron parses standard 5-field cron expressions
// (minute hour day-of-month month day-of-week) and computes the next
// execution time in UTC. The sweeper uses it to schedule expiry passes.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpression is returned when an expression has the wrong field
// count, out-of-range values, or malformed syntax.
var ErrInvalidExpression = errors.New("invalid cron expression")

// ErrNoMatch is returned when no matching time exists within the search
// window (roughly one year).
var ErrNoMatch = errors.New("cron: no matching time found")

const fieldCount = 5

var fieldRanges = [fieldCount]struct{ min, max int }{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week
}

// Schedule computes the next execution time after a reference time.
type Schedule interface {
	Next(from time.Time) (time.Time, error)
}

type schedule struct {
	minutes map[int]bool
	hours   map[int]bool
	doms    map[int]bool
	months  map[int]bool
	dows    map[int]bool
}

// Parse parses a 5-field cron expression. Supported field syntax: "*",
// "*/step", single values, "a-b" ranges, and comma lists of any of these.
func Parse(expr string) (Schedule, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidExpression, fieldCount, len(fields))
	}

	parsed := make([]map[int]bool, fieldCount)

	for i, field := range fields {
		values, err := parseField(field, fieldRanges[i].min, fieldRanges[i].max)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidExpression, i, err)
		}

		parsed[i] = values
	}

	return &schedule{
		minutes: parsed[0],
		hours:   parsed[1],
		doms:    parsed[2],
		months:  parsed[3],
		dows:    parsed[4],
	}, nil
}

func parseField(field string, min, max int) (map[int]bool, error) {
	values := make(map[int]bool)

	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, min, max, values); err != nil {
			return nil, err
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("empty field %q", field)
	}

	return values, nil
}

func parsePart(part string, min, max int, values map[int]bool) error {
	step := 1
	stepped := false

	if base, stepExpr, found := strings.Cut(part, "/"); found {
		parsedStep, err := strconv.Atoi(stepExpr)
		if err != nil || parsedStep <= 0 {
			return fmt.Errorf("bad step %q", stepExpr)
		}

		step = parsedStep
		stepped = true
		part = base
	}

	lo, hi := min, max

	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		from, to, _ := strings.Cut(part, "-")

		var err error
		if lo, err = strconv.Atoi(from); err != nil {
			return fmt.Errorf("bad range start %q", from)
		}

		if hi, err = strconv.Atoi(to); err != nil {
			return fmt.Errorf("bad range end %q", to)
		}
	default:
		value, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("bad value %q", part)
		}

		// "5/10" means start at 5 and step to the field max, like "5-59/10".
		lo, hi = value, value
		if stepped {
			hi = max
		}
	}

	if lo < min || hi > max || lo > hi {
		return fmt.Errorf("value out of range [%d,%d]: %q", min, max, part)
	}

	for v := lo; v <= hi; v += step {
		values[v] = true
	}

	return nil
}

// Next returns the first time strictly after from, in UTC, that matches every
// field of the schedule.
func (s *schedule) Next(from time.Time) (time.Time, error) {
	from = from.UTC()
	candidate := from.Add(time.Minute).Truncate(time.Minute)

	// Bounded scan: one minute at a time for a bit over a year.
	const maxIterations = 366 * 24 * 60

	for i := 0; i < maxIterations; i++ {
		if s.matches(candidate) {
			return candidate, nil
		}

		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, ErrNoMatch
}

func (s *schedule) matches(t time.Time) bool {
	return s.minutes[t.Minute()] &&
		s.hours[t.Hour()] &&
		s.doms[t.Day()] &&
		s.months[int(t.Month())] &&
		s.dows[int(t.Weekday())]
}
