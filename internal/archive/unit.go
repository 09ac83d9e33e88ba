// Package archive maps reference time grids onto the per-day and per-month
// files of the source archives, and fetches those files from their mirrors.
package archive

import (
	"fmt"
	"time"

	"github.com/rtm0/tecgrid/internal/grid"
)

// Granularity is the calendar period covered by one archive file.
type Granularity int

const (
	Daily Granularity = iota
	Monthly
)

func (g Granularity) String() string {
	if g == Daily {
		return "daily"
	}
	return "monthly"
}

// Unit is one calendar day or month. Day is zero for monthly units.
type Unit struct {
	Year  int
	Month time.Month
	Day   int
}

// UnitOf returns the unit containing t (taken in UTC).
func UnitOf(t time.Time, gran Granularity) Unit {
	t = t.UTC()
	u := Unit{Year: t.Year(), Month: t.Month()}
	if gran == Daily {
		u.Day = t.Day()
	}
	return u
}

// Start returns the first instant of the unit.
func (u Unit) Start() time.Time {
	day := u.Day
	if day == 0 {
		day = 1
	}
	return time.Date(u.Year, u.Month, day, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant after the unit.
func (u Unit) End() time.Time {
	if u.Day == 0 {
		return u.Start().AddDate(0, 1, 0)
	}
	return u.Start().AddDate(0, 0, 1)
}

func (u Unit) String() string {
	if u.Day == 0 {
		return fmt.Sprintf("%04d-%02d", u.Year, int(u.Month))
	}
	return fmt.Sprintf("%04d-%02d-%02d", u.Year, int(u.Month), u.Day)
}

// Units returns the distinct units touched by the grid in ascending order.
func Units(g grid.TimeGrid, gran Granularity) []Unit {
	var units []Unit
	for _, ts := range g.Times() {
		u := UnitOf(ts, gran)
		if len(units) == 0 || units[len(units)-1] != u {
			units = append(units, u)
		}
	}
	return units
}

// UnitsBetween returns the units overlapping [start, end).
func UnitsBetween(start, end time.Time, gran Granularity) []Unit {
	var units []Unit
	for u := UnitOf(start, gran); u.Start().Before(end); {
		units = append(units, u)
		u = UnitOf(u.End(), gran)
	}
	return units
}
