package model

import (
	"fmt"
	"time"
)

// TimeSpan is an enumerated candle/bar width.
type TimeSpan string

const (
	SpanMinute  TimeSpan = "minute"
	SpanHour    TimeSpan = "hour"
	SpanDay     TimeSpan = "day"
	SpanWeek    TimeSpan = "week"
	SpanMonth   TimeSpan = "month"
	SpanQuarter TimeSpan = "quarter"
)

type spanInfo struct {
	letter string // DSL letter and DB table suffix
	moex   int    // MOEX ISS interval code
	width  time.Duration
}

var spanInfos = map[TimeSpan]spanInfo{
	SpanMinute:  {"T", 1, time.Minute},
	SpanHour:    {"H", 60, time.Hour},
	SpanDay:     {"D", 24, 24 * time.Hour},
	SpanWeek:    {"W", 7, 7 * 24 * time.Hour},
	SpanMonth:   {"M", 31, 31 * 24 * time.Hour},
	SpanQuarter: {"Q", 4, 3 * 31 * 24 * time.Hour},
}

// Letter returns the single-letter DSL code ("T", "H", "D", "W", "M", "Q").
func (s TimeSpan) Letter() string { return spanInfos[s].letter }

// MOEXCode returns the interval code the MOEX ISS API expects.
func (s TimeSpan) MOEXCode() int { return spanInfos[s].moex }

// Width returns the wall-clock width of one bar. Month and quarter use the
// 31-day upper bound so a requested window never undershoots the data.
func (s TimeSpan) Width() time.Duration { return spanInfos[s].width }

// Valid reports whether s is a known time span.
func (s TimeSpan) Valid() bool {
	_, ok := spanInfos[s]
	return ok
}

func (s TimeSpan) String() string { return string(s) }

// ParseSpanLetter resolves a DSL letter to a time span.
// "C" ("current") is an alias for one minute.
func ParseSpanLetter(letter string) (TimeSpan, error) {
	if letter == "C" {
		return SpanMinute, nil
	}
	for span, info := range spanInfos {
		if info.letter == letter {
			return span, nil
		}
	}
	return "", fmt.Errorf("%w: unknown time span %q", ErrWrongCondition, letter)
}

// ParseSpan resolves a full span name ("minute", "hour", ...).
func ParseSpan(name string) (TimeSpan, error) {
	s := TimeSpan(name)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown time span %q", ErrWrongCondition, name)
	}
	return s, nil
}
