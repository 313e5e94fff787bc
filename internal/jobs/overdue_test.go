package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfoi/foiportal/internal/metrics"
	"github.com/openfoi/foiportal/internal/models"
)

type mockStore struct {
	overdue []*models.Request
	calls   int
	err     error
}

func (m *mockStore) ListOverdueRequests(_ context.Context, _ time.Time) ([]*models.Request, error) {
	m.calls++
	return m.overdue, m.err
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler(&mockStore{}, metrics.New(), "not a cron expression", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestSchedulerRunsSweepOnStart(t *testing.T) {
	store := &mockStore{overdue: []*models.Request{{}, {}}}

	s, err := NewScheduler(store, metrics.New(), "0 * * * *", zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	s.Start()
	defer s.Stop()

	if store.calls != 1 {
		t.Errorf("expected one sweep on start, got %d", store.calls)
	}
}
