// Package calendar holds the calendar-day representation shared by the feed
// synchronizer and booking validation. Every instant is folded into the
// villa's local day (UTC+8) before it is compared with anything else.
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Zone is the villa's reference timezone (Bali, WITA).
var Zone = time.FixedZone("WITA", 8*60*60)

var ErrInvalidTimestamp = errors.New("calendar: invalid timestamp")

// Date is a day without time-of-day, stored as midnight in Zone.
type Date struct {
	t time.Time
}

// Normalize shifts t into Zone and truncates it to the start of that day.
func Normalize(t time.Time) (Date, error) {
	if t.IsZero() {
		return Date{}, ErrInvalidTimestamp
	}
	l := t.In(Zone)
	return Date{t: time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Zone)}, nil
}

// Parse reads a timestamp the way the web client sends them (ISO dates,
// RFC 3339, toISOString output). Date-only strings are read as UTC midnight.
func Parse(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidTimestamp
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return Normalize(t)
}

// Of builds a Date from its parts.
func Of(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, Zone)}
}

func (d Date) Time() time.Time { return d.t }
func (d Date) IsZero() bool    { return d.t.IsZero() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Nights counts the days between d and a later date.
func (d Date) Nights(until Date) int {
	return int(until.t.Sub(d.t).Hours() / 24)
}

func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format("2006-01-02")
}

// Display renders the day the way guests see it in emails (dd/mm/yyyy).
func (d Date) Display() string {
	return d.t.Format("02/01/2006")
}

// MarshalJSON writes the midnight instant with its +08:00 offset so a
// browser Date lands on the right day.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.t.Format(time.RFC3339))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
