// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package incident

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/arcadia-commerce/sentinel/internal/event"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type mockBroadcaster struct {
	incidents []*Incident
}

func (b *mockBroadcaster) BroadcastIncident(inc *Incident) {
	b.incidents = append(b.incidents, inc)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(DefaultConfig(), NewMemoryStore(), nil)
	m.now = clock.Now
	return m, clock
}

func TestCreateAssignsIDAndStatus(t *testing.T) {
	m, _ := newTestManager(t)

	inc, err := m.Create(context.Background(), "brute_force", event.SeverityHigh, "repeated failures", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !strings.HasPrefix(inc.ID, "INC-") {
		t.Errorf("id = %q, want INC- prefix", inc.ID)
	}
	if inc.Status != StatusOpen {
		t.Errorf("status = %q, want open", inc.Status)
	}
	if len(inc.ResponseActions) == 0 {
		t.Error("expected canned response actions on creation")
	}
}

func TestIncidentIDUniqueness(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		inc, err := m.Create(ctx, "test", event.SeverityLow, "uniqueness check", nil)
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		if _, dup := seen[inc.ID]; dup {
			t.Fatalf("duplicate incident id %q at iteration %d", inc.ID, i)
		}
		seen[inc.ID] = struct{}{}
	}
}

func TestResponseActionCountBySeverity(t *testing.T) {
	tests := []struct {
		severity event.Severity
		actions  int
	}{
		{event.SeverityCritical, 5},
		{event.SeverityHigh, 4},
		{event.SeverityMedium, 3},
		{event.SeverityLow, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			m, _ := newTestManager(t)

			inc, err := m.Create(context.Background(), "test", tt.severity, "severity actions", nil)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if len(inc.ResponseActions) != tt.actions {
				t.Errorf("got %d actions, want %d: %v", len(inc.ResponseActions), tt.actions, inc.ResponseActions)
			}
		})
	}
}

func TestActiveIncidents(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	open, _ := m.Create(ctx, "a", event.SeverityLow, "open", nil)
	investigating, _ := m.Create(ctx, "b", event.SeverityLow, "investigating", nil)
	contained, _ := m.Create(ctx, "c", event.SeverityLow, "contained", nil)
	resolved, _ := m.Create(ctx, "d", event.SeverityLow, "resolved", nil)

	if _, err := m.UpdateStatus(ctx, investigating.ID, StatusInvestigating); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := m.UpdateStatus(ctx, contained.ID, StatusContained); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := m.UpdateStatus(ctx, resolved.ID, StatusResolved); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	active, err := m.ActiveIncidents(ctx)
	if err != nil {
		t.Fatalf("ActiveIncidents: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active incidents, want 2", len(active))
	}
	for _, inc := range active {
		if inc.ID != open.ID && inc.ID != investigating.ID {
			t.Errorf("unexpected active incident %q with status %q", inc.ID, inc.Status)
		}
	}
}

func TestUpdateStatusAllowsAnyTransition(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	inc, _ := m.Create(ctx, "a", event.SeverityLow, "transitions", nil)

	// Jump straight to resolved and back to open. No transition table
	// is enforced.
	if _, err := m.UpdateStatus(ctx, inc.ID, StatusResolved); err != nil {
		t.Fatalf("open -> resolved: %v", err)
	}
	updated, err := m.UpdateStatus(ctx, inc.ID, StatusOpen)
	if err != nil {
		t.Fatalf("resolved -> open: %v", err)
	}
	if updated.Status != StatusOpen {
		t.Errorf("status = %q, want open", updated.Status)
	}

	// Status changes are recorded as response actions.
	last := updated.ResponseActions[len(updated.ResponseActions)-1]
	if !strings.Contains(last, "resolved") || !strings.Contains(last, "open") {
		t.Errorf("last action %q does not record the transition", last)
	}
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	inc, _ := m.Create(ctx, "a", event.SeverityLow, "bad status", nil)
	if _, err := m.UpdateStatus(ctx, inc.ID, Status("escalated")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestUpdateStatusUnknownID(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.UpdateStatus(context.Background(), "INC-0-missing", StatusResolved); err == nil {
		t.Fatal("expected error for unknown incident id")
	}
}

func TestSweepResolvedRespectsRetention(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()

	oldInc, _ := m.Create(ctx, "a", event.SeverityLow, "old resolved", nil)
	if _, err := m.UpdateStatus(ctx, oldInc.ID, StatusResolved); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	clock.Advance(31 * 24 * time.Hour)

	freshInc, _ := m.Create(ctx, "b", event.SeverityLow, "fresh resolved", nil)
	if _, err := m.UpdateStatus(ctx, freshInc.ID, StatusResolved); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	stillOpen, _ := m.Create(ctx, "c", event.SeverityLow, "still open", nil)

	removed, err := m.SweepResolved(ctx)
	if err != nil {
		t.Fatalf("SweepResolved: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d incidents, want 1", removed)
	}

	if _, err := m.Get(ctx, oldInc.ID); err == nil {
		t.Error("old resolved incident survived the sweep")
	}
	if _, err := m.Get(ctx, freshInc.ID); err != nil {
		t.Errorf("fresh resolved incident was swept: %v", err)
	}
	if _, err := m.Get(ctx, stillOpen.ID); err != nil {
		t.Errorf("open incident was swept: %v", err)
	}
}

func TestBroadcasterReceivesNewIncidents(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	m := NewManager(DefaultConfig(), NewMemoryStore(), broadcaster)

	inc, err := m.Create(context.Background(), "a", event.SeverityHigh, "broadcast", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(broadcaster.incidents) != 1 || broadcaster.incidents[0].ID != inc.ID {
		t.Fatalf("broadcaster got %+v, want the created incident", broadcaster.incidents)
	}
}

func TestAddAction(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	inc, _ := m.Create(ctx, "a", event.SeverityLow, "manual action", nil)
	before := len(inc.ResponseActions)

	updated, err := m.AddAction(ctx, inc.ID, "Rotated API keys")
	if err != nil {
		t.Fatalf("AddAction: %v", err)
	}
	if len(updated.ResponseActions) != before+1 {
		t.Fatalf("got %d actions, want %d", len(updated.ResponseActions), before+1)
	}
	if updated.ResponseActions[before] != "Rotated API keys" {
		t.Errorf("appended action = %q", updated.ResponseActions[before])
	}
}

func TestRunbooks(t *testing.T) {
	for _, class := range []string{"data_breach", "unauthorized_access", "malware"} {
		steps, ok := Runbook(class)
		if !ok {
			t.Errorf("missing runbook for %q", class)
			continue
		}
		if len(steps) == 0 {
			t.Errorf("empty runbook for %q", class)
		}
	}

	if _, ok := Runbook("phishing"); ok {
		t.Error("unexpected runbook for unknown class")
	}

	if classes := RunbookClasses(); len(classes) != 3 {
		t.Errorf("got %d runbook classes, want 3", len(classes))
	}
}
