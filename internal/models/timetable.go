package models

import (
	"fmt"
	"strings"
)

// Day is a school day in the weekly grid.
type Day string

const (
	DayMonday    Day = "MON"
	DayTuesday   Day = "TUE"
	DayWednesday Day = "WED"
	DayThursday  Day = "THU"
	DayFriday    Day = "FRI"
)

var weekDays = []Day{DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday}

var dayAliases = map[string]Day{
	"MON":       DayMonday,
	"MONDAY":    DayMonday,
	"TUE":       DayTuesday,
	"TUESDAY":   DayTuesday,
	"WED":       DayWednesday,
	"WEDNESDAY": DayWednesday,
	"THU":       DayThursday,
	"THURSDAY":  DayThursday,
	"FRI":       DayFriday,
	"FRIDAY":    DayFriday,
}

// WeekDays returns the days of the grid in calendar order.
func WeekDays() []Day {
	out := make([]Day, len(weekDays))
	copy(out, weekDays)
	return out
}

// ParseDay accepts short or long English day names in any case.
func ParseDay(raw string) (Day, error) {
	day, ok := dayAliases[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown day %q", raw)
	}
	return day, nil
}

// Valid reports whether d is one of the five grid days.
func (d Day) Valid() bool {
	return d.Index() >= 0
}

// Index is the zero based position of d in the week, -1 when invalid.
func (d Day) Index() int {
	for i, day := range weekDays {
		if day == d {
			return i
		}
	}
	return -1
}

// TimeBlock is a fixed teaching period, repeated on every day.
type TimeBlock struct {
	ID        int    `db:"id" json:"id"`
	Label     string `db:"label" json:"label"`
	StartTime string `db:"starts_at" json:"start_time"`
	EndTime   string `db:"ends_at" json:"end_time"`
}

// Slot is a (day, block) coordinate of the grid.
type Slot struct {
	Day     Day `json:"day"`
	BlockID int `json:"block_id"`
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/%d", s.Day, s.BlockID)
}

// GridResponse describes the weekly grid for clients.
type GridResponse struct {
	Days   []Day       `json:"days"`
	Blocks []TimeBlock `json:"blocks"`
}
