package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEnsureSubjectMarker(t *testing.T) {
	cases := []struct {
		subject string
		want    string
	}{
		{"Test Subject", "Test Subject [#7]"},
		{"Test Subject [#7]", "Test Subject [#7]"},
		{"Re: Test Subject [#7] [#7]", "Re: Test Subject [#7]"},
		{"", "[#7]"},
		{"[#7]", "[#7]"},
	}
	for _, c := range cases {
		got := EnsureSubjectMarker(c.subject, 7)
		if got != c.want {
			t.Errorf("EnsureSubjectMarker(%q) = %q, want %q", c.subject, got, c.want)
		}
		if CountSubjectMarkers(got, 7) != 1 {
			t.Errorf("subject %q must carry exactly one marker", got)
		}
	}
}

func TestEnsureSubjectMarkerRepeatedReplies(t *testing.T) {
	subject := "Information request"
	for i := 0; i < 5; i++ {
		subject = EnsureSubjectMarker("Re: "+subject, 123)
	}
	if n := CountSubjectMarkers(subject, 123); n != 1 {
		t.Errorf("after repeated replies expected 1 marker, got %d in %q", n, subject)
	}
	if !strings.HasSuffix(subject, "[#123]") {
		t.Errorf("marker must be the subject suffix, got %q", subject)
	}
}

func TestNewInboundMessage(t *testing.T) {
	reqID := uuid.New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewInboundMessage(reqID, ts, "Re: Subject", "Body")

	if !m.IsResponse {
		t.Error("inbound messages are responses")
	}
	if !m.Sent {
		t.Error("inbound messages are always delivered")
	}
	if m.Timestamp != ts {
		t.Errorf("expected timestamp %v, got %v", ts, m.Timestamp)
	}
}

func TestNewPostalMessage(t *testing.T) {
	m := NewPostalMessage(uuid.New(), time.Now(), "Some Sender", "Some Text")
	if !m.Postal || !m.IsResponse || !m.Sent {
		t.Error("postal replies are delivered inbound responses")
	}
	if m.SenderName != "Some Sender" {
		t.Errorf("unexpected sender name %q", m.SenderName)
	}
}

func TestNewOutboundMessage(t *testing.T) {
	userID := uuid.New()
	m := NewOutboundMessage(uuid.New(), userID, "Subject", "Body")
	if m.Sent {
		t.Error("outbound messages start unsent")
	}
	if m.IsResponse {
		t.Error("outbound messages are not responses")
	}
	if m.SenderUserID == nil || *m.SenderUserID != userID {
		t.Error("expected sender user to be recorded")
	}
}
