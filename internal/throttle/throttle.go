// Package throttle bounds how many requests a user may create within
// sliding time windows.
package throttle

import (
	"fmt"
	"time"

	"github.com/openfoi/foiportal/internal/apperr"
)

// Window is one (max count, period) bound. Windows are evaluated
// independently; exceeding any one of them blocks the action.
type Window struct {
	Count  int           `yaml:"count"`
	Period time.Duration `yaml:"period"`
}

// Throttle holds the ordered list of windows.
type Throttle struct {
	windows []Window
}

// New creates a throttle. A nil or empty window list disables it.
func New(windows []Window) *Throttle {
	return &Throttle{windows: windows}
}

// Windows returns the configured bounds.
func (t *Throttle) Windows() []Window {
	return t.windows
}

// MaxPeriod returns the longest configured window, the horizon the
// caller must fetch creation timestamps for.
func (t *Throttle) MaxPeriod() time.Duration {
	var max time.Duration
	for _, w := range t.windows {
		if w.Period > max {
			max = w.Period
		}
	}
	return max
}

// Check evaluates every window against the caller's existing creation
// timestamps. The timestamps must come from the same transaction that
// will persist the new request, so two concurrent submissions cannot
// both pass the boundary check.
func (t *Throttle) Check(now time.Time, created []time.Time) error {
	for _, w := range t.windows {
		cutoff := now.Add(-w.Period)
		n := 0
		for _, ts := range created {
			if ts.After(cutoff) {
				n++
			}
		}
		if n >= w.Count {
			return apperr.RateLimited(fmt.Sprintf(
				"you have exceeded your request limit of %d %s in %s",
				w.Count, plural(w.Count, "request"), humanPeriod(w.Period)))
		}
	}
	return nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

// humanPeriod renders a duration the way a person would say it:
// "1 minute", "2 hours", "45 seconds".
func humanPeriod(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		n := int(d / (24 * time.Hour))
		return fmt.Sprintf("%d %s", n, plural(n, "day"))
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		return fmt.Sprintf("%d %s", n, plural(n, "hour"))
	case d >= time.Minute && d%time.Minute == 0:
		n := int(d / time.Minute)
		return fmt.Sprintf("%d %s", n, plural(n, "minute"))
	default:
		n := int(d / time.Second)
		return fmt.Sprintf("%d %s", n, plural(n, "second"))
	}
}
