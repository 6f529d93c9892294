// Package market provides trading-session awareness for the NSE: whether
// the market is open at a given instant, when the next session starts, and
// how long cached market data can safely live while the market is closed.
package market

import (
	"fmt"
	"time"
)

// Default NSE session parameters.
const (
	DefaultTimezone = "Asia/Kolkata"
	DefaultOpen     = "09:15"
	DefaultClose    = "15:30"
)

// Calendar answers market-hours questions for a fixed daily session window
// in a fixed trading-location time zone, with a static holiday set. All
// methods take the instant explicitly so callers (and tests) control the
// clock.
type Calendar struct {
	loc       *time.Location
	openHour  int
	openMin   int
	closeHour int
	closeMin  int
	holidays  map[string]bool // keyed "2006-01-02" in loc
}

// NewCalendar creates a Calendar for the given IANA time zone, "HH:MM"
// open/close times, and "YYYY-MM-DD" holiday dates. An empty or nil holiday
// list means no holidays.
func NewCalendar(timezone, open, close string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	oh, om, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("parsing open time: %w", err)
	}
	ch, cm, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("parsing close time: %w", err)
	}

	hset := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("parsing holiday %q: %w", h, err)
		}
		hset[h] = true
	}

	return &Calendar{
		loc:       loc,
		openHour:  oh,
		openMin:   om,
		closeHour: ch,
		closeMin:  cm,
		holidays:  hset,
	}, nil
}

// NewNSECalendar creates a Calendar with the standard NSE session
// (09:15-15:30 IST) and the given holiday dates.
func NewNSECalendar(holidays []string) (*Calendar, error) {
	return NewCalendar(DefaultTimezone, DefaultOpen, DefaultClose, holidays)
}

// parseClock parses "HH:MM" into hour and minute components.
func parseClock(s string) (hour, min int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// IsOpen reports whether the market is open at time t: a non-holiday
// weekday with t inside the [open, close] session window, evaluated in the
// trading-location zone.
func (c *Calendar) IsOpen(t time.Time) bool {
	lt := t.In(c.loc)

	if !c.isTradingDay(lt) {
		return false
	}

	open := c.sessionOpen(lt)
	close := c.sessionClose(lt)
	return !lt.Before(open) && !lt.After(close)
}

// NextOpen returns the start of the next trading session strictly after the
// session containing (or preceding) t. Matching the behaviour this replaces:
// once t has reached today's open, the answer is tomorrow or later even if
// today's session is still running — it answers "when does the next session
// start", not "when did this one start".
func (c *Calendar) NextOpen(t time.Time) time.Time {
	lt := t.In(c.loc)

	day := lt
	// Before today's open on a trading day, today's open is the next open.
	if c.isTradingDay(lt) && lt.Before(c.sessionOpen(lt)) {
		return c.sessionOpen(lt)
	}

	for {
		day = day.AddDate(0, 0, 1)
		if c.isTradingDay(day) {
			return c.sessionOpen(day)
		}
	}
}

// UntilNextOpen returns the duration from t to the next session open.
func (c *Calendar) UntilNextOpen(t time.Time) time.Duration {
	return c.NextOpen(t).Sub(t)
}

// RecommendedTTL returns ttl unchanged while the market is open. When the
// market is closed the data cannot change until the next session, so the
// entry is allowed to live until the next open regardless of the nominal
// ttl.
func (c *Calendar) RecommendedTTL(ttl time.Duration, t time.Time) time.Duration {
	if c.IsOpen(t) {
		return ttl
	}
	return c.UntilNextOpen(t)
}

// isTradingDay reports whether the date of lt (already in c.loc) is a
// non-holiday weekday.
func (c *Calendar) isTradingDay(lt time.Time) bool {
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[lt.Format("2006-01-02")]
}

// sessionOpen returns the session open instant on the date of lt.
func (c *Calendar) sessionOpen(lt time.Time) time.Time {
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.openHour, c.openMin, 0, 0, c.loc)
}

// sessionClose returns the session close instant on the date of lt.
func (c *Calendar) sessionClose(lt time.Time) time.Time {
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.closeHour, c.closeMin, 0, 0, c.loc)
}
