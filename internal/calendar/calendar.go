// Package calendar renders calendar days for display. Converters never take
// part in bucket computation.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Converter renders a civil date in a local calendar.
type Converter interface {
	ToLocalCalendar(date time.Time) string
}

// Gregorian renders dates with a Go time layout.
type Gregorian struct {
	Layout string
}

func (g Gregorian) ToLocalCalendar(date time.Time) string {
	layout := g.Layout
	if layout == "" {
		layout = "Mon, 2 Jan 2006"
	}
	return date.Format(layout)
}

// New returns the converter registered under name: "gregorian" (default) or "hebrew".
func New(name string) (Converter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gregorian":
		return Gregorian{}, nil
	case "hebrew":
		return Hebrew{}, nil
	default:
		return nil, fmt.Errorf("unknown calendar %q", name)
	}
}
