package domain

import (
	"fmt"
	"time"
)

// Period is a calendar month. Start and End are both inclusive.
type Period struct {
	Year  int
	Month time.Month
	Loc   *time.Location
}

// PeriodOf returns the calendar month containing t, in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month(), Loc: t.Location()}
}

// ParsePeriod reads a YYYY-MM key.
func ParsePeriod(key string, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01", key, loc)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", key)
	}
	return Period{Year: t.Year(), Month: t.Month(), Loc: loc}, nil
}

func (p Period) location() *time.Location {
	if p.Loc == nil {
		return time.UTC
	}
	return p.Loc
}

func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, p.location())
}

// End is the last representable instant of the month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start()) && !t.After(p.End())
}

func (p Period) String() string { return p.Key() }
