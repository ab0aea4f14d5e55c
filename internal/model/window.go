package model

import (
	"fmt"
	"time"
)

const (
	DefaultWindow    = 24 * time.Hour
	DefaultMaxWindow = 30 * 24 * time.Hour
	DefaultClockSkew = 2 * time.Minute
)

// TimeWindow is the half-open interval [Start, End) of ticket creation times.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TrailingWindow returns the window of length d ending at end.
func TrailingWindow(end time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Start: end.Add(-d), End: end}
}

// HoursWindow is TrailingWindow for a caller-supplied hour count. The count is
// bounded by maxDuration before it becomes a time.Duration, so counts that would
// overflow int64 nanoseconds are rejected instead of wrapping.
func HoursWindow(end time.Time, hours int, maxDuration time.Duration) (TimeWindow, error) {
	if hours <= 0 {
		return TimeWindow{}, fmt.Errorf("%w: hours must be positive, got %d", ErrInvalidWindow, hours)
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxWindow
	}
	if hours > int(maxDuration/time.Hour) {
		return TimeWindow{}, fmt.Errorf("%w: %d hours exceeds maximum %s", ErrInvalidWindow, hours, maxDuration)
	}
	return TrailingWindow(end, time.Duration(hours)*time.Hour), nil
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Validate rejects empty or inverted windows, windows ending after now+skew
// and windows longer than maxDuration (0 disables the bound).
func (w TimeWindow) Validate(now time.Time, maxDuration, skew time.Duration) error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow,
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	}
	if w.End.After(now.Add(skew)) {
		return fmt.Errorf("%w: end %s is in the future", ErrInvalidWindow, w.End.UTC().Format(time.RFC3339))
	}
	if maxDuration > 0 && w.Duration() > maxDuration {
		return fmt.Errorf("%w: duration %s exceeds maximum %s", ErrInvalidWindow, w.Duration(), maxDuration)
	}
	return nil
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%s to %s", w.Start.UTC().Format("2006-01-02 15:04 UTC"), w.End.UTC().Format("2006-01-02 15:04 UTC"))
}
