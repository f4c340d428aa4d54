package datetime

import (
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// slotLayout renders month, day and hour without leading zeros: "3-5 2:30pm".
	slotLayout = "1-2 3:04pm"

	callLayout      = "Monday, January 2, 3:04PM"
	referenceLayout = "Monday, January 2, 2006, 3:04PM"
)

var lower = cases.Lower(language.AmericanEnglish)

// FormatSlotTime renders a slot start time in loc for speaking to the caller.
func FormatSlotTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(slotLayout)
}

// Stamp is a human-readable instant in two casings: Lower is fully lowercased
// ("tuesday, march 5, 2:30pm") and Nice capitalizes only the first letter.
type Stamp struct {
	Nice  string
	Lower string
}

// String joins both casings the way they are embedded in prompts.
func (s Stamp) String() string {
	return s.Nice + " | " + s.Lower
}

// CallStamp formats the moment a call began, without the year.
func CallStamp(t time.Time, loc *time.Location) Stamp {
	return newStamp(t, loc, callLayout)
}

// ReferenceStamp formats "now" including the year, for function guidance text.
func ReferenceStamp(t time.Time, loc *time.Location) Stamp {
	return newStamp(t, loc, referenceLayout)
}

func newStamp(t time.Time, loc *time.Location, layout string) Stamp {
	if loc != nil {
		t = t.In(loc)
	}
	l := lower.String(t.Format(layout))
	return Stamp{Nice: capitalize(l), Lower: l}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

var instantLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ErrInvalidInstant is returned by ParseInstant for unrecognized input.
var ErrInvalidInstant = errors.New("invalid ISO 8601 instant")

// ParseInstant parses an ISO 8601 timestamp. Values carrying an offset keep
// it; values without one are interpreted in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidInstant
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidInstant
}
