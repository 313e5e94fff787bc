// Package law resolves the legal parameters of a request: response
// deadlines, letter boilerplate and the oversight mediator.
package law

import (
	"time"

	"github.com/openfoi/foiportal/internal/models"
)

// Calendar knows which days are public holidays. Weekends are always
// non-business days.
type Calendar struct {
	holidays map[string]bool
}

const holidayKeyFormat = "2006-01-02"

// NewCalendar creates a holiday calendar from concrete dates.
func NewCalendar(holidays []time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.Format(holidayKeyFormat)] = true
	}
	return c
}

// IsBusinessDay reports whether t falls on a working day.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[t.Format(holidayKeyFormat)]
}

// nextBusinessDay rolls t forward to the next working day, leaving
// working days untouched.
func (c *Calendar) nextBusinessDay(t time.Time) time.Time {
	for !c.IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// addBusinessDays advances t by n working days.
func (c *Calendar) addBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if c.IsBusinessDay(t) {
			n--
		}
	}
	return t
}

// DueDate computes the legally mandated response deadline for a
// request filed at base under the given law.
func DueDate(l *models.Law, cal *Calendar, base time.Time) time.Time {
	base = base.UTC()
	switch l.MaxResponseTimeUnit {
	case models.DeadlineBusinessDays:
		return cal.addBusinessDays(base, l.MaxResponseTime)
	case models.DeadlineCalendarMonths:
		return cal.nextBusinessDay(base.AddDate(0, l.MaxResponseTime, 0))
	default:
		return base.AddDate(0, 0, l.MaxResponseTime)
	}
}

// ExtendDueDate adds months to an existing due date by re-running the
// law's formula anchored at the current due date, not by plain
// addition: the resulting date still lands on a day the law considers
// answerable.
func ExtendDueDate(l *models.Law, cal *Calendar, due time.Time, months int) time.Time {
	extended := due.UTC().AddDate(0, months, 0)
	if l.MaxResponseTimeUnit == models.DeadlineBusinessDays ||
		l.MaxResponseTimeUnit == models.DeadlineCalendarMonths {
		return cal.nextBusinessDay(extended)
	}
	return extended
}
