// Package uom converts time-frequency units and computes deadlines from intervals.
package uom

import (
	"errors"
	"fmt"
	"time"

	"github.com/senseyeio/duration"
)

// Unit is a time-frequency unit identifier.
type Unit string

const (
	Millisecond Unit = "TF_ms"
	Second      Unit = "TF_s"
	Minute      Unit = "TF_min"
	Hour        Unit = "TF_hr"
	Day         Unit = "TF_day"
	Week        Unit = "TF_wk"
	Month       Unit = "TF_mon"
	Year        Unit = "TF_yr"
)

var ErrUnknownUnit = errors.New("unknown unit of measure")

// Months are 30 days and years 365 days.
var milliseconds = map[Unit]float64{
	Millisecond: 1,
	Second:      1000,
	Minute:      60 * 1000,
	Hour:        60 * 60 * 1000,
	Day:         24 * 60 * 60 * 1000,
	Week:        7 * 24 * 60 * 60 * 1000,
	Month:       30 * 24 * 60 * 60 * 1000,
	Year:        365 * 24 * 60 * 60 * 1000,
}

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	_, ok := milliseconds[u]

	return ok
}

// Convert expresses amount of from in to.
func Convert(amount float64, from, to Unit) (float64, error) {
	f, ok := milliseconds[from]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnit, from)
	}

	t, ok := milliseconds[to]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnit, to)
	}

	return amount * f / t, nil
}

// Duration converts an interval to a time.Duration, rounded down to whole minutes, the
// resolution timeouts are kept at.
func Duration(interval int, unit Unit) (time.Duration, error) {
	minutes, err := Convert(float64(interval), unit, Minute)
	if err != nil {
		return 0, err
	}

	return time.Duration(int64(minutes)) * time.Minute, nil
}

// ParseISO8601 parses an ISO-8601 duration such as "P1DT12H".
func ParseISO8601(s string) (duration.Duration, error) {
	d, err := duration.ParseISO8601(s)
	if err != nil {
		return duration.Duration{}, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
	}

	return d, nil
}

// Deadline returns from shifted by the ISO-8601 duration iso when it is set, otherwise
// by interval units. ok is false when neither describes a positive timeout.
func Deadline(from time.Time, iso string, interval int, unit Unit) (deadline time.Time, ok bool, err error) {
	if iso != "" {
		d, err := ParseISO8601(iso)
		if err != nil {
			return time.Time{}, false, err
		}

		shifted := d.Shift(from)
		if !shifted.After(from) {
			return time.Time{}, false, nil
		}

		return shifted, true, nil
	}

	if interval <= 0 || unit == "" {
		return time.Time{}, false, nil
	}

	d, err := Duration(interval, unit)
	if err != nil {
		return time.Time{}, false, err
	}

	return from.Add(d), true, nil
}
