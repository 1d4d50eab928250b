// Package cycle computes the daily active/freeze phases and the window of
// content eligible for the next evaluation.
//
// A day is split at two hour boundaries in a fixed timezone. Content is
// created and fees accumulate during the active phase [activeStart, freezeStart);
// settlement runs during the freeze [freezeStart, activeStart). Either phase
// may wrap past midnight. All comparisons are inclusive at the start and
// exclusive at the end.
package cycle

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for freeze periods and pools.
const DateLayout = "2006-01-02"

// Phase names.
const (
	PhaseActive = "active"
	PhaseFreeze = "freeze"
)

// Calculator derives cycle boundaries from an explicit clock reading.
type Calculator struct {
	freezeStart int
	activeStart int
	loc         *time.Location
}

// New creates a calculator for the given hour boundaries.
func New(freezeStartHour, activeStartHour int, loc *time.Location) (*Calculator, error) {
	if freezeStartHour < 0 || freezeStartHour > 23 || activeStartHour < 0 || activeStartHour > 23 {
		return nil, fmt.Errorf("cycle hours must be within 0..23, got freeze=%d active=%d", freezeStartHour, activeStartHour)
	}
	if freezeStartHour == activeStartHour {
		return nil, errors.New("freeze and active start hours must differ")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{freezeStart: freezeStartHour, activeStart: activeStartHour, loc: loc}, nil
}

// Location returns the calculator's timezone.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// FreezeStartHour returns the configured freeze boundary.
func (c *Calculator) FreezeStartHour() int { return c.freezeStart }

// ActiveStartHour returns the configured active boundary.
func (c *Calculator) ActiveStartHour() int { return c.activeStart }

// IsFreezePeriod reports whether now falls in [freezeStart, activeStart).
func (c *Calculator) IsFreezePeriod(now time.Time) bool {
	h := now.In(c.loc).Hour()
	if c.freezeStart < c.activeStart {
		return h >= c.freezeStart && h < c.activeStart
	}
	return h >= c.freezeStart || h < c.activeStart
}

// ActiveWindowStart returns the inclusive start of the evaluation window.
func (c *Calculator) ActiveWindowStart(now time.Time) time.Time {
	return c.lastAt(c.ActiveWindowEnd(now).Add(-time.Nanosecond), c.activeStart)
}

// ActiveWindowEnd returns the exclusive end of the evaluation window.
// While active this is the next freeze boundary; during a freeze it is the
// boundary that started the freeze.
func (c *Calculator) ActiveWindowEnd(now time.Time) time.Time {
	if c.IsFreezePeriod(now) {
		return c.lastAt(now, c.freezeStart)
	}
	return c.nextAt(now, c.freezeStart)
}

// CurrentFreezePeriod returns the label of the settlement that will cover
// the current window: the calendar date on which that window closes.
func (c *Calculator) CurrentFreezePeriod(now time.Time) string {
	return c.ActiveWindowEnd(now).Format(DateLayout)
}

// TimeUntilFreeze returns the time left before the next freeze. Zero during a freeze.
func (c *Calculator) TimeUntilFreeze(now time.Time) time.Duration {
	if c.IsFreezePeriod(now) {
		return 0
	}
	return nonNegative(c.nextAt(now, c.freezeStart).Sub(now))
}

// TimeUntilActiveStart returns the time left in the freeze. Zero while active.
func (c *Calculator) TimeUntilActiveStart(now time.Time) time.Duration {
	if !c.IsFreezePeriod(now) {
		return 0
	}
	return nonNegative(c.nextAt(now, c.activeStart).Sub(now))
}

// DateKey returns the calendar date of now in the cycle timezone.
func (c *Calculator) DateKey(now time.Time) string {
	return now.In(c.loc).Format(DateLayout)
}

// StartOfDay returns midnight of now's calendar day in the cycle timezone.
func (c *Calculator) StartOfDay(now time.Time) time.Time {
	t := now.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// Info is a snapshot of the cycle for display.
type Info struct {
	IsFreezePeriod     bool      `json:"isFreezePeriod"`
	CurrentPhase       string    `json:"currentPhase"`
	TimeUntilNextPhase int64     `json:"timeUntilNextPhase"`
	Formatted          string    `json:"formatted"`
	FreezePeriod       string    `json:"freezePeriod"`
	ActiveWindowStart  time.Time `json:"activeWindowStart"`
	ActiveWindowEnd    time.Time `json:"activeWindowEnd"`
}

// Info summarizes the cycle at now.
func (c *Calculator) Info(now time.Time) Info {
	freeze := c.IsFreezePeriod(now)
	phase := PhaseActive
	remaining := c.TimeUntilFreeze(now)
	if freeze {
		phase = PhaseFreeze
		remaining = c.TimeUntilActiveStart(now)
	}
	return Info{
		IsFreezePeriod:     freeze,
		CurrentPhase:       phase,
		TimeUntilNextPhase: int64(remaining / time.Second),
		Formatted:          FormatRemaining(remaining),
		FreezePeriod:       c.CurrentFreezePeriod(now),
		ActiveWindowStart:  c.ActiveWindowStart(now),
		ActiveWindowEnd:    c.ActiveWindowEnd(now),
	}
}

// FormatRemaining renders d as "Xh Ym Zs".
func FormatRemaining(d time.Duration) string {
	d = nonNegative(d)
	total := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", total/3600, total%3600/60, total%60)
}

// lastAt returns the latest instant at hour:00 that is not after now.
func (c *Calculator) lastAt(now time.Time, hour int) time.Time {
	t := now.In(c.loc)
	at := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, c.loc)
	if at.After(t) {
		at = time.Date(t.Year(), t.Month(), t.Day()-1, hour, 0, 0, 0, c.loc)
	}
	return at
}

// nextAt returns the earliest instant at hour:00 strictly after now.
func (c *Calculator) nextAt(now time.Time, hour int) time.Time {
	t := now.In(c.loc)
	at := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, c.loc)
	if !at.After(t) {
		at = time.Date(t.Year(), t.Month(), t.Day()+1, hour, 0, 0, 0, c.loc)
	}
	return at
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
