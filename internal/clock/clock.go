// Package clock abstracts wall-clock time so sweeps and validation can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time in the clinic's location.
type Clock interface {
	Now() time.Time
}

type realClock struct {
	loc *time.Location
}

// New returns a Clock backed by time.Now, reported in loc (UTC when nil).
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return realClock{loc: loc}
}

func (c realClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Fake is a manually driven Clock.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// DateOf returns the calendar date of t as midnight UTC, the same shape pgx
// uses when scanning a DATE column.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// At combines a calendar date with a wall-clock offset from midnight in loc.
// The offset is read as hours, minutes and seconds on the clock face, so the
// result stays correct on days when loc shifts for daylight saving.
func At(date time.Time, sinceMidnight time.Duration, loc *time.Location) time.Time {
	y, m, d := date.Date()
	h := sinceMidnight / time.Hour
	mins := sinceMidnight % time.Hour / time.Minute
	sec := sinceMidnight % time.Minute / time.Second
	ns := sinceMidnight % time.Second
	return time.Date(y, m, d, int(h), int(mins), int(sec), int(ns), loc)
}

// SinceMidnight returns the wall-clock reading of t as an offset from midnight.
func SinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}
