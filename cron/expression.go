package cron

import (
	"sort"
	"time"
)

// searchYears bounds the search for expressions without a year field.
const searchYears = 5

// Expression is a compiled cron expression. It is immutable and safe for
// concurrent use.
type Expression struct {
	expr                                  string
	second, minute, hour, dom, month, dow uint64
	years                                 []int
	location                              *time.Location
}

func (e *Expression) String() string {
	return e.expr
}

// Location returns the fixed evaluation location, or nil when fire times follow
// the location of the argument to Next.
func (e *Expression) Location() *time.Location {
	return e.location
}

// Next returns the earliest instant strictly after the given time that matches
// the expression. The second result is false when no such instant exists.
//
// The field walk, including the WRAP restart and the midnight DST adjustment,
// follows SpecSchedule.Next from github.com/robfig/cron (MIT License,
// Copyright (C) 2012 Rob Figueroa) with a year field added.
func (e *Expression) Next(after time.Time) (time.Time, bool) {
	origLocation := after.Location()
	loc := e.location
	if loc == nil {
		loc = origLocation
	}
	t := after.In(loc)

	// Start at the next whole second.
	t = t.Add(time.Second - time.Duration(t.Nanosecond())*time.Nanosecond)

	// Once a field has been advanced the lower fields are reset to their minimum.
	added := false

	yearLimit := t.Year() + searchYears
	if len(e.years) > 0 {
		yearLimit = e.years[len(e.years)-1]
	}

WRAP:
	if t.Year() > yearLimit {
		return time.Time{}, false
	}

	if !e.yearMatches(t.Year()) {
		y, ok := e.nextYear(t.Year())
		if !ok {
			return time.Time{}, false
		}
		added = true
		t = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		goto WRAP
	}

	for 1<<uint(t.Month())&e.month == 0 {
		if !added {
			added = true
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		}
		t = t.AddDate(0, 1, 0)
		if t.Month() == time.January {
			goto WRAP
		}
	}

	for !e.dayMatches(t) {
		if !added {
			added = true
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		}
		t = t.AddDate(0, 0, 1)
		// Midnight can move when a DST transition falls on the previous day.
		if t.Hour() != 0 {
			if t.Hour() > 12 {
				t = t.Add(time.Duration(24-t.Hour()) * time.Hour)
			} else {
				t = t.Add(time.Duration(-t.Hour()) * time.Hour)
			}
		}
		if t.Day() == 1 {
			goto WRAP
		}
	}

	for 1<<uint(t.Hour())&e.hour == 0 {
		if !added {
			added = true
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
		}
		t = t.Add(time.Hour)
		if t.Hour() == 0 {
			goto WRAP
		}
	}

	for 1<<uint(t.Minute())&e.minute == 0 {
		if !added {
			added = true
			t = t.Truncate(time.Minute)
		}
		t = t.Add(time.Minute)
		if t.Minute() == 0 {
			goto WRAP
		}
	}

	for 1<<uint(t.Second())&e.second == 0 {
		if !added {
			added = true
			t = t.Truncate(time.Second)
		}
		t = t.Add(time.Second)
		if t.Second() == 0 {
			goto WRAP
		}
	}

	return t.In(origLocation), true
}

func (e *Expression) dayMatches(t time.Time) bool {
	domMatch := 1<<uint(t.Day())&e.dom > 0
	dowMatch := 1<<uint(t.Weekday())&e.dow > 0
	if e.dom&starBit > 0 || e.dow&starBit > 0 {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

func (e *Expression) yearMatches(year int) bool {
	if len(e.years) == 0 {
		return true
	}
	i := sort.SearchInts(e.years, year)
	return i < len(e.years) && e.years[i] == year
}

// nextYear returns the smallest allowed year greater than year.
func (e *Expression) nextYear(year int) (int, bool) {
	i := sort.SearchInts(e.years, year+1)
	if i == len(e.years) {
		return 0, false
	}
	return e.years[i], true
}
