// Package parse turns loosely formatted input (query strings, upstream feed
// fields) into engine values.
package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rental-availability-backend/internal/domain"
)

// Layouts accepted by Time, tried in order. Layouts without a zone are read
// in the caller's location.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Time parses a timestamp. A nil loc means UTC. The result is in UTC.
func Time(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", raw)
}

// Interval parses and validates a [start, end) pair.
func Interval(start, end string, loc *time.Location) (domain.Interval, error) {
	s, err := Time(start, loc)
	if err != nil {
		return domain.Interval{}, fmt.Errorf("%w: start: %v", domain.ErrInvalidInterval, err)
	}
	e, err := Time(end, loc)
	if err != nil {
		return domain.Interval{}, fmt.Errorf("%w: end: %v", domain.ErrInvalidInterval, err)
	}
	return domain.NewInterval(s, e)
}

// Quantity parses a positive unit count; empty means 1.
func Quantity(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidQuantity, raw)
	}
	return n, nil
}
