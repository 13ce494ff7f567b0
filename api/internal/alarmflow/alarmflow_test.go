package alarmflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestApplyAcknowledged(t *testing.T) {
	actor := uuid.New()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ch := Apply(3, StatusAcknowledged, actor, now)
	if ch.AcknowledgedBy == nil || *ch.AcknowledgedBy != actor {
		t.Fatalf("acknowledgedBy = %v", ch.AcknowledgedBy)
	}
	if ch.AcknowledgedAt == nil || !ch.AcknowledgedAt.Equal(now) {
		t.Fatalf("acknowledgedAt = %v", ch.AcknowledgedAt)
	}
	if ch.ResolvedBy != nil || ch.ResolvedAt != nil {
		t.Fatal("ack must not stamp resolution fields")
	}
	if ch.StatusID != 3 {
		t.Fatalf("statusID = %d", ch.StatusID)
	}
}

func TestApplyResolved(t *testing.T) {
	actor := uuid.New()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ch := Apply(4, StatusResolved, actor, now)
	if ch.ResolvedBy == nil || *ch.ResolvedBy != actor {
		t.Fatalf("resolvedBy = %v", ch.ResolvedBy)
	}
	if ch.ResolvedAt == nil || !ch.ResolvedAt.Equal(now) {
		t.Fatalf("resolvedAt = %v", ch.ResolvedAt)
	}
	if ch.AcknowledgedBy != nil {
		t.Fatal("resolve must not stamp ack fields")
	}
}

func TestSeveritiesMatchCatalog(t *testing.T) {
	want := []string{SeverityCritical, SeverityMajor, SeverityMinor, SeverityWarning}
	got := Severities()
	if len(got) != len(want) {
		t.Fatalf("severities = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("severities = %v, want %v", got, want)
		}
	}
	if SeverityCritical != "Critical" || SeverityWarning != "Warning" {
		t.Fatalf("severity spelling drifted: %s, %s", SeverityCritical, SeverityWarning)
	}
}

func TestApplyOtherStatusesOnlyTouchUpdatedAt(t *testing.T) {
	actor := uuid.New()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{StatusActive, StatusUnacked, "Suppressed"} {
		ch := Apply(1, name, actor, now)
		if ch.AcknowledgedBy != nil || ch.ResolvedBy != nil {
			t.Fatalf("%s stamped actor fields: %+v", name, ch)
		}
		if !ch.UpdatedAt.Equal(now) {
			t.Fatalf("%s updatedAt = %v", name, ch.UpdatedAt)
		}
	}
}
