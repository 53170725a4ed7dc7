package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the zone working hours are evaluated in unless configured.
const DefaultTimezone = "America/New_York"

// TimeSlot is a free block of working time.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DurationMinutes returns the slot length in whole minutes.
func (s TimeSlot) DurationMinutes() int {
	return int(s.End.Sub(s.Start) / time.Minute)
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s - %s", s.Start.Format("Mon Jan 2 15:04"), s.End.Format("15:04 MST"))
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(value string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", value)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant of c on the calendar day of day, in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// WorkingHours is the daily window slots are searched in.
type WorkingHours struct {
	Start        ClockTime
	End          ClockTime
	SkipWeekends bool
	Location     *time.Location
}

// DefaultWorkingHours is 09:00-17:00 on weekdays in DefaultTimezone, falling
// back to UTC when zone data is unavailable.
func DefaultWorkingHours() WorkingHours {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return WorkingHours{
		Start:        ClockTime{Hour: 9},
		End:          ClockTime{Hour: 17},
		SkipWeekends: true,
		Location:     loc,
	}
}

// SlotQuery parameterises FindSlots.
type SlotQuery struct {
	DurationMinutes int
	DaysAhead       int
	MaxSlots        int // <= 0 means unbounded
	Hours           WorkingHours
	// Now anchors "today". Zero means time.Now().
	Now time.Time
	// NotBefore, when set, moves each day's cursor past it.
	NotBefore time.Time
}

// FindSlots sweeps each day in [today, today+DaysAhead) and returns the
// working-hours gaps between events that fit DurationMinutes. Events count
// only toward the day their start falls on. Results are ordered by start and
// capped at MaxSlots. The events slice is not modified.
func FindSlots(events []Event, q SlotQuery) []TimeSlot {
	loc := q.Hours.Location
	if loc == nil {
		loc = time.Local
	}
	duration := time.Duration(q.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = 60 * time.Minute
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}

	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var slots []TimeSlot
	y, m, d := now.In(loc).Date()
	for offset := 0; offset < q.DaysAhead; offset++ {
		day := time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
		if q.Hours.SkipWeekends && isWeekend(day) {
			continue
		}

		dayStart := q.Hours.Start.On(day, loc)
		dayEnd := q.Hours.End.On(day, loc)
		cursor := dayStart
		if q.NotBefore.After(cursor) {
			cursor = q.NotBefore.In(loc)
		}

		for _, ev := range sorted {
			if !sameDay(ev.Start.In(loc), day) {
				continue
			}
			gapEnd := ev.Start
			if gapEnd.After(dayEnd) {
				gapEnd = dayEnd
			}
			if gapEnd.Sub(cursor) >= duration {
				slots = append(slots, TimeSlot{Start: cursor, End: cursor.Add(duration)})
				if q.MaxSlots > 0 && len(slots) >= q.MaxSlots {
					return slots
				}
			}
			if ev.End.After(cursor) {
				cursor = ev.End.In(loc)
			}
		}

		if dayEnd.Sub(cursor) >= duration {
			slots = append(slots, TimeSlot{Start: cursor, End: cursor.Add(duration)})
			if q.MaxSlots > 0 && len(slots) >= q.MaxSlots {
				return slots
			}
		}
	}
	return slots
}

// SlotsOn keeps only the slots starting on the calendar day of date in loc.
func SlotsOn(slots []TimeSlot, date time.Time, loc *time.Location) []TimeSlot {
	if loc == nil {
		loc = time.Local
	}
	day := date.In(loc)
	var out []TimeSlot
	for _, s := range slots {
		if sameDay(s.Start.In(loc), day) {
			out = append(out, s)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
