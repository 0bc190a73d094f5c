package scheme

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day in the business calendar of the source system
// =============================================================================

// Date is a calendar day. The time component is always midnight UTC so two
// dates compare equal whenever their calendar fields match.
type Date struct {
	t time.Time
}

// NewDate builds a date from calendar fields.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar day as written, without
// converting it to another zone first.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"02/01/2006",
	"02-01-2006",
}

// ParseDate accepts the date spellings produced by the scheme editor and the
// sales extract. Offsets in RFC 3339 strings are ignored.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.t.After(o.t) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.t.Before(o.t) }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format("2006-01-02")
}

// =============================================================================
// PERIOD - Inclusive date window
// =============================================================================

// Period is the inclusive window [From, To].
type Period struct {
	From Date
	To   Date
}

// Contains returns true if d is within [From, To].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.From) && d.BeforeOrEqual(p.To)
}

// IsZero reports an unset period.
func (p Period) IsZero() bool {
	return p.From.IsZero() && p.To.IsZero()
}

// Valid reports a fully set period whose start is not after its end.
func (p Period) Valid() bool {
	return !p.From.IsZero() && !p.To.IsZero() && p.From.BeforeOrEqual(p.To)
}

// Overlaps reports whether two periods share at least one day.
func (p Period) Overlaps(o Period) bool {
	return p.From.BeforeOrEqual(o.To) && o.From.BeforeOrEqual(p.To)
}

// Months is the inclusive count of calendar months touched by the period.
// Jan 15 - Mar 2 counts as 3.
func (p Period) Months() int {
	if !p.Valid() {
		return 0
	}
	return (p.To.Year()-p.From.Year())*12 + int(p.To.Month()) - int(p.From.Month()) + 1
}

// Union returns the smallest period covering both. Zero periods are ignored.
func (p Period) Union(o Period) Period {
	if p.IsZero() {
		return o
	}
	if o.IsZero() {
		return p
	}
	out := p
	if o.From.Before(out.From) {
		out.From = o.From
	}
	if o.To.After(out.To) {
		out.To = o.To
	}
	return out
}

func (p Period) String() string {
	return "[" + p.From.String() + ", " + p.To.String() + "]"
}

// MarshalJSON writes the date as "2006-01-02".
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts any layout ParseDate does; "" and null leave the
// zero date.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
