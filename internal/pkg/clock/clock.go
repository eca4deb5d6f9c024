// Package clock implements the emulator's virtual clock. Core packages must
// not call time.Now(); they read this clock so scenarios can jump or advance
// time deterministically.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrBadPeriod rejects labels that are not "<year>-Q<n>".
var ErrBadPeriod = errors.New("malformed period label")

// DefaultEpoch is where the clock starts when no persisted state loads.
var DefaultEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// StateStore persists the clock's instant between runs. Save must be
// best-effort (log, never fail the caller); Load reports whether prior
// state was recovered.
type StateStore interface {
	Save(v any)
	Load(v any) bool
}

type persistedState struct {
	CurrentTime time.Time `json:"current_time"`
}

// Clock holds the mutable virtual instant and notifies observers on
// period-relevant changes.
type Clock struct {
	mu        sync.Mutex
	current   time.Time
	observers []func()
	state     StateStore
	logger    *slog.Logger
}

// New creates a Clock at DefaultEpoch, then best-effort restores the last
// persisted instant. A nil state disables persistence.
func New(state StateStore, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Clock{current: DefaultEpoch, state: state, logger: logger}
	if state != nil {
		var s persistedState
		if state.Load(&s) && !s.CurrentTime.IsZero() {
			c.current = s.CurrentTime
		}
	}
	return c
}

// Now returns the current virtual instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance applies a relative offset. Quarters normalize to months before
// month arithmetic; month arithmetic clamps to the last valid day of the
// target month (Jan 31 + 1 month = Feb 29 in 2024); day arithmetic applies
// on top. Observers always fire after a successful advance, including the
// all-zero no-op; callers must not depend on the no-op case.
func (c *Clock) Advance(days, months, quarters int) time.Time {
	c.mu.Lock()
	months += quarters * 3
	if months != 0 {
		c.current = addMonths(c.current, months)
	}
	if days != 0 {
		c.current = c.current.AddDate(0, 0, days)
	}
	now := c.current
	c.mu.Unlock()

	c.saveState(now)
	c.notify()
	return now
}

// Set jumps directly to target. Observers fire only when the quarter label
// changed across the jump.
func (c *Clock) Set(target time.Time) time.Time {
	c.mu.Lock()
	oldQuarter := Quarter(c.current)
	c.current = target
	newQuarter := Quarter(target)
	c.mu.Unlock()

	c.saveState(target)
	if oldQuarter != newQuarter {
		c.notify()
	}
	return target
}

// Period returns the quarter label for the current instant.
func (c *Clock) Period() string { return Quarter(c.Now()) }

// Subscribe registers a callback invoked when the clock moves. Callbacks
// run in registration order; a panicking callback is recovered and logged
// so the remaining callbacks still run.
func (c *Clock) Subscribe(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Clock) notify() {
	c.mu.Lock()
	observers := make([]func(), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for i, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("time callback failed", slog.Int("index", i), slog.Any("err", r))
				}
			}()
			fn()
		}()
	}
}

func (c *Clock) saveState(now time.Time) {
	if c.state == nil {
		return
	}
	c.state.Save(persistedState{CurrentTime: now})
}

// Quarter derives the "<year>-Q<n>" label from an instant; the quarter is
// a pure function of year and month.
func Quarter(t time.Time) string {
	q := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", t.Year(), q)
}

// ParsePeriod splits a "<year>-Q<n>" label. Malformed labels are a hard
// error since all period arithmetic depends on them.
func ParsePeriod(label string) (year, quarter int, err error) {
	ys, qs, ok := strings.Cut(label, "-Q")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadPeriod, label)
	}
	year, err = strconv.Atoi(ys)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadPeriod, label)
	}
	quarter, err = strconv.Atoi(qs)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadPeriod, label)
	}
	if quarter < 1 || quarter > 4 {
		return 0, 0, fmt.Errorf("%w: %q: quarter out of range", ErrBadPeriod, label)
	}
	return year, quarter, nil
}

// PeriodBounds maps a quarter label to its first instant and the last
// instant of its final day.
func PeriodBounds(label string) (start, end time.Time, err error) {
	year, quarter, err := ParsePeriod(label)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	startMonth := time.Month((quarter-1)*3 + 1)
	start = time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 3, 0).Add(-time.Nanosecond)
	return start, end, nil
}

// PreviousPeriod returns the quarter immediately before label, wrapping
// Q1 to the prior year's Q4.
func PreviousPeriod(label string) (string, error) {
	year, quarter, err := ParsePeriod(label)
	if err != nil {
		return "", err
	}
	if quarter == 1 {
		return fmt.Sprintf("%d-Q4", year-1), nil
	}
	return fmt.Sprintf("%d-Q%d", year, quarter-1), nil
}

// ComparePeriods orders two labels by (year, quarter): -1, 0, or 1.
func ComparePeriods(a, b string) (int, error) {
	ay, aq, err := ParsePeriod(a)
	if err != nil {
		return 0, err
	}
	by, bq, err := ParsePeriod(b)
	if err != nil {
		return 0, err
	}
	switch {
	case ay != by && ay < by:
		return -1, nil
	case ay != by:
		return 1, nil
	case aq < bq:
		return -1, nil
	case aq > bq:
		return 1, nil
	}
	return 0, nil
}

// addMonths applies calendar month arithmetic, clamping the day of month to
// the last valid day of the target month rather than letting it overflow.
func addMonths(t time.Time, months int) time.Time {
	total := t.Year()*12 + int(t.Month()) - 1 + months
	year := total / 12
	rem := total % 12
	if rem < 0 {
		rem += 12
		year--
	}
	month := time.Month(rem + 1)
	day := t.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
