// Package datetime formats instants for the caller-facing parts of a call:
// the system prompt timestamp and the spoken appointment slot times.
package datetime

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultOfficeTimezone is the timezone slots and call timestamps are rendered in.
const DefaultOfficeTimezone = "America/New_York"

// LoadLocation resolves a configured IANA timezone name. An empty name
// resolves to DefaultOfficeTimezone.
func LoadLocation(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = DefaultOfficeTimezone
	}
	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", trimmed, err)
	}
	return loc, nil
}

// MustLoadLocation is like LoadLocation but panics on an invalid name.
// Intended for package-level defaults and tests.
func MustLoadLocation(name string) *time.Location {
	loc, err := LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}
