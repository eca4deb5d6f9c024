package qos

import (
	"errors"
	"testing"
	"time"

	"slurmemu/internal/pkg/clock"
	"slurmemu/internal/pkg/model"
	"slurmemu/internal/pkg/store"
)

func newManager(t *testing.T) (*Manager, *clock.Clock, *store.Store) {
	t.Helper()
	c := clock.New(nil, nil)
	s := store.New(nil, nil)
	return New(s, c, nil), c, s
}

func TestAccountLevelDefaultsToNormal(t *testing.T) {
	m, _, s := newManager(t)
	if got := m.AccountLevel("never-created"); got != model.QOSNormal {
		t.Errorf("unknown account level = %q, want normal", got)
	}
	s.AddAccount("physics", "", "", "")
	if got := m.AccountLevel("physics"); got != model.QOSNormal {
		t.Errorf("new account level = %q, want normal", got)
	}
}

func TestSetRejectsUnknownLevel(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")

	err := m.Set("physics", model.QOSLevel("turbo"))
	if !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
	if got := m.AccountLevel("physics"); got != model.QOSNormal {
		t.Errorf("level changed despite invalid input: %q", got)
	}
}

func TestSetRejectsUnknownAccount(t *testing.T) {
	m, _, _ := newManager(t)
	err := m.Set("ghost", model.QOSSlowdown)
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSetAppliesLevel(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")

	if err := m.Set("physics", model.QOSBlocked); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := m.AccountLevel("physics"); got != model.QOSBlocked {
		t.Errorf("level = %q, want blocked", got)
	}
	// direct jump back down is legal
	if err := m.Set("physics", model.QOSNormal); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := m.AccountLevel("physics"); got != model.QOSNormal {
		t.Errorf("level = %q, want normal", got)
	}
}

// Usage of 1100 against threshold 1000 / grace 1200 slows the account down.
func TestCheckAndUpdateSoftExceeded(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")

	result := m.CheckAndUpdate("physics", 1100, 1000, 1200)

	if result.NewLevel != model.QOSSlowdown {
		t.Errorf("new level = %q, want slowdown", result.NewLevel)
	}
	if result.Status != StatusSoftExceeded {
		t.Errorf("status = %q, want soft_limit_exceeded", result.Status)
	}
	if result.ActionTaken != "qos_change:normal→slowdown" {
		t.Errorf("action = %q, want qos_change:normal→slowdown", result.ActionTaken)
	}
	if got := m.AccountLevel("physics"); got != model.QOSSlowdown {
		t.Errorf("stored level = %q, want slowdown", got)
	}
}

// Usage of 1300 exceeds the grace limit and blocks the account outright.
func TestCheckAndUpdateHardExceeded(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")

	result := m.CheckAndUpdate("physics", 1300, 1000, 1200)

	if result.NewLevel != model.QOSBlocked {
		t.Errorf("new level = %q, want blocked", result.NewLevel)
	}
	if result.Status != StatusHardExceeded {
		t.Errorf("status = %q, want hard_limit_exceeded", result.Status)
	}
	if result.ActionTaken != "qos_change:normal→blocked" {
		t.Errorf("action = %q, want qos_change:normal→blocked", result.ActionTaken)
	}
}

func TestCheckAndUpdateNoChange(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")

	result := m.CheckAndUpdate("physics", 500, 1000, 1200)

	if result.NewLevel != model.QOSNormal {
		t.Errorf("new level = %q, want normal", result.NewLevel)
	}
	if result.ActionTaken != "" {
		t.Errorf("action = %q, want empty for no-op", result.ActionTaken)
	}
	if result.Status != StatusNormal {
		t.Errorf("status = %q, want normal", result.Status)
	}
}

func TestCheckAndUpdateApproachingThreshold(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")

	result := m.CheckAndUpdate("physics", 900, 1000, 1200)

	if result.NewLevel != model.QOSNormal {
		t.Errorf("new level = %q, want normal at 90%%", result.NewLevel)
	}
	if result.Status != StatusApproaching {
		t.Errorf("status = %q, want approaching_threshold", result.Status)
	}
}

func TestCheckAndUpdateUnknownAccountFails(t *testing.T) {
	m, _, _ := newManager(t)
	result := m.CheckAndUpdate("ghost", 1300, 1000, 1200)
	if result.ActionTaken != "qos_change_failed" {
		t.Errorf("action = %q, want qos_change_failed", result.ActionTaken)
	}
}

// A blocked account returns to normal at a period boundary regardless of
// usage.
func TestRestoreForNewPeriod(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")
	if err := m.Set("physics", model.QOSBlocked); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := m.RestoreForNewPeriod("physics"); err != nil {
		t.Fatalf("RestoreForNewPeriod: %v", err)
	}
	if got := m.AccountLevel("physics"); got != model.QOSNormal {
		t.Errorf("level = %q, want normal after restore", got)
	}
}

func TestLevelInfo(t *testing.T) {
	info, ok := Info(model.QOSNormal)
	if !ok || info.PriorityWeight != 1000 {
		t.Errorf("normal info = %+v, ok=%v", info, ok)
	}
	info, ok = Info(model.QOSBlocked)
	if !ok {
		t.Fatal("blocked info missing")
	}
	if info.MaxSubmitJobs == nil || *info.MaxSubmitJobs != 0 {
		t.Errorf("blocked MaxSubmitJobs = %v, want 0", info.MaxSubmitJobs)
	}
	if _, ok := Info(model.QOSLevel("turbo")); ok {
		t.Error("unknown level returned info")
	}
}

func TestSimulateImpact(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")
	s.AddAssociation("alice", "physics", nil)
	s.AddAssociation("bob", "physics", nil)

	impact := m.SimulateImpact("physics", 1300, 1000, 1200)
	if impact.ProjectedLevel != model.QOSBlocked {
		t.Errorf("projected = %q, want blocked", impact.ProjectedLevel)
	}
	if !impact.QOSChangeNeeded {
		t.Error("expected qos change needed")
	}
	if impact.Severity != ImpactCritical {
		t.Errorf("severity = %q, want critical", impact.Severity)
	}
	if impact.Type != ImpactTypeRestriction {
		t.Errorf("type = %q, want restriction", impact.Type)
	}
	if len(impact.AffectedUsers) != 2 {
		t.Errorf("affected users = %v, want alice and bob", impact.AffectedUsers)
	}
	// nothing applied
	if got := m.AccountLevel("physics"); got != model.QOSNormal {
		t.Errorf("level = %q after simulation, want unchanged normal", got)
	}

	impact = m.SimulateImpact("physics", 500, 1000, 1200)
	if impact.QOSChangeNeeded {
		t.Error("no change expected for usage under threshold")
	}
	if impact.Type != ImpactTypeNoChange {
		t.Errorf("type = %q, want no_change", impact.Type)
	}
	if impact.Severity != ImpactNone {
		t.Errorf("severity = %q, want none", impact.Severity)
	}
}

func TestSimulateImpactImprovement(t *testing.T) {
	m, _, s := newManager(t)
	s.AddAccount("physics", "", "", "")
	if err := m.Set("physics", model.QOSBlocked); err != nil {
		t.Fatalf("Set: %v", err)
	}

	impact := m.SimulateImpact("physics", 500, 1000, 1200)
	if impact.ProjectedLevel != model.QOSNormal {
		t.Errorf("projected = %q, want normal", impact.ProjectedLevel)
	}
	if impact.Severity != ImpactImprovement {
		t.Errorf("severity = %q, want improvement", impact.Severity)
	}
	if impact.Type != ImpactTypeImprovement {
		t.Errorf("type = %q, want improvement", impact.Type)
	}
}

func TestGenerateReport(t *testing.T) {
	m, c, s := newManager(t)
	c.Set(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))
	s.AddAccount("physics", "", "", "")
	s.AddAccount("chem", "", "", "")
	if err := m.Set("chem", model.QOSSlowdown); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.AppendUsage(model.UsageRecord{Account: "physics", NodeHours: 250, Period: "2024-Q2"})

	report := m.GenerateReport([]string{"physics", "chem"})

	if report.Period != "2024-Q2" {
		t.Errorf("period = %q, want 2024-Q2", report.Period)
	}
	if len(report.Accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(report.Accounts))
	}
	if report.Accounts["physics"].Usage != 250 {
		t.Errorf("physics usage = %v, want 250", report.Accounts["physics"].Usage)
	}
	if report.Accounts["chem"].Level != model.QOSSlowdown {
		t.Errorf("chem level = %q, want slowdown", report.Accounts["chem"].Level)
	}
	if report.Summary[model.QOSNormal] != 1 || report.Summary[model.QOSSlowdown] != 1 || report.Summary[model.QOSBlocked] != 0 {
		t.Errorf("summary = %v", report.Summary)
	}
}
