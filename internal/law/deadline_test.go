package law

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openfoi/foiportal/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDueDateCalendarDays(t *testing.T) {
	l := models.NewLaw("IFG", uuid.New(), 30, models.DeadlineCalendarDays)
	cal := NewCalendar(nil)

	due := DueDate(l, cal, date(2024, time.March, 1))
	if !due.Equal(date(2024, time.March, 31)) {
		t.Errorf("expected 2024-03-31, got %v", due)
	}
}

func TestDueDateBusinessDaysSkipsWeekends(t *testing.T) {
	l := models.NewLaw("IFG", uuid.New(), 5, models.DeadlineBusinessDays)
	cal := NewCalendar(nil)

	// Friday + 5 business days = next Friday.
	due := DueDate(l, cal, date(2024, time.March, 1))
	if !due.Equal(date(2024, time.March, 8)) {
		t.Errorf("expected 2024-03-08, got %v", due)
	}
}

func TestDueDateBusinessDaysSkipsHolidays(t *testing.T) {
	l := models.NewLaw("IFG", uuid.New(), 2, models.DeadlineBusinessDays)
	cal := NewCalendar([]time.Time{date(2024, time.March, 4)}) // Monday holiday

	due := DueDate(l, cal, date(2024, time.March, 1)) // Friday
	if !due.Equal(date(2024, time.March, 6)) {
		t.Errorf("expected 2024-03-06, got %v", due)
	}
}

func TestDueDateCalendarMonthsRollsToBusinessDay(t *testing.T) {
	l := models.NewLaw("IFG", uuid.New(), 1, models.DeadlineCalendarMonths)
	cal := NewCalendar(nil)

	// 2024-05-01 + 1 month = 2024-06-01 (Saturday) -> Monday 06-03.
	due := DueDate(l, cal, date(2024, time.May, 1))
	if !due.Equal(date(2024, time.June, 3)) {
		t.Errorf("expected 2024-06-03, got %v", due)
	}
}

func TestExtendDueDateRerunsFormula(t *testing.T) {
	l := models.NewLaw("IFG", uuid.New(), 1, models.DeadlineCalendarMonths)
	cal := NewCalendar(nil)

	// 2024-04-03 + 2 months = 2024-06-03 (Monday), already a business day.
	due := ExtendDueDate(l, cal, date(2024, time.April, 3), 2)
	if !due.Equal(date(2024, time.June, 3)) {
		t.Errorf("expected 2024-06-03, got %v", due)
	}

	// Landing on a weekend rolls forward rather than adding plainly.
	due = ExtendDueDate(l, cal, date(2024, time.April, 6), 2) // -> 06-06? no: 2024-06-06 is Thursday
	if !cal.IsBusinessDay(due) {
		t.Errorf("extended due date %v must land on a business day", due)
	}
}

func TestComposeLetter(t *testing.T) {
	l := models.NewLaw("IFG", uuid.New(), 30, models.DeadlineCalendarDays)
	l.LetterStart = "Dear Sir or Madam,"
	l.LetterEnd = "Please respond within the legal deadline."

	text := ComposeLetter(l, "Send me the documents.", LetterOptions{
		Name:         "Stefan Wehrmeyer",
		Organization: "ACME Org",
		Address:      "TestStreet 3\n55555 Town",
	})

	for _, want := range []string{
		l.LetterStart,
		"Send me the documents.",
		l.LetterEnd,
		"\nStefan Wehrmeyer\n",
		"\nACME Org\n",
		"TestStreet 3",
		LegalNotice,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("letter missing %q:\n%s", want, text)
		}
	}
}

func TestComposeLetterFullText(t *testing.T) {
	l := models.NewLaw("IFG", uuid.New(), 30, models.DeadlineCalendarDays)
	l.LetterStart = "Dear Sir or Madam,"
	l.LetterEnd = "Please respond."

	text := ComposeLetter(l, "Complete custom letter.", LetterOptions{FullText: true})
	if strings.Contains(text, l.LetterStart) || strings.Contains(text, l.LetterEnd) {
		t.Error("full-text letters must not include boilerplate")
	}
	if !strings.Contains(text, LegalNotice) {
		t.Error("legal notice is always appended")
	}
}
