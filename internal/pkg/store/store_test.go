package store

import (
	"encoding/json"
	"testing"
	"time"

	"slurmemu/internal/pkg/model"
)

type fakeState struct {
	saved []byte
}

func (f *fakeState) Save(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.saved = b
}

func (f *fakeState) Load(v any) bool {
	if f.saved == nil {
		return false
	}
	return json.Unmarshal(f.saved, v) == nil
}

func TestNewSeedsRootAccount(t *testing.T) {
	s := New(nil, nil)
	root, ok := s.Account("root")
	if !ok {
		t.Fatal("root account missing after New")
	}
	if root.Organization != "system" {
		t.Errorf("root organization = %q, want system", root.Organization)
	}
	if root.QOS != model.QOSNormal {
		t.Errorf("root qos = %q, want normal", root.QOS)
	}
}

func TestAddAccountDefaults(t *testing.T) {
	s := New(nil, nil)
	s.AddAccount("physics", "Physics dept", "uni", "root")

	acct, ok := s.Account("physics")
	if !ok {
		t.Fatal("account not found after AddAccount")
	}
	if acct.Fairshare != 1 {
		t.Errorf("fairshare = %d, want 1", acct.Fairshare)
	}
	if acct.Allocation != model.DefaultAllocation {
		t.Errorf("allocation = %v, want %v", acct.Allocation, model.DefaultAllocation)
	}
	if acct.QOS != model.QOSNormal {
		t.Errorf("qos = %q, want normal", acct.QOS)
	}
	if acct.Limits == nil {
		t.Error("limits map not initialized")
	}
}

func TestAccountsSortedByName(t *testing.T) {
	s := New(nil, nil)
	s.AddAccount("zeta", "", "", "")
	s.AddAccount("alpha", "", "", "")

	accounts := s.Accounts()
	if len(accounts) != 3 { // alpha, root, zeta
		t.Fatalf("expected 3 accounts, got %d", len(accounts))
	}
	if accounts[0].Name != "alpha" || accounts[2].Name != "zeta" {
		t.Errorf("accounts not sorted: %v, %v, %v", accounts[0].Name, accounts[1].Name, accounts[2].Name)
	}
}

func TestUpdateAccountUnknown(t *testing.T) {
	s := New(nil, nil)
	err := s.UpdateAccount("ghost", func(a *model.Account) {})
	if err != ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func addRecord(s *Store, account, user, period string, nodeHours float64) {
	s.AppendUsage(model.UsageRecord{
		Account:   account,
		User:      user,
		NodeHours: nodeHours,
		Period:    period,
		Timestamp: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})
}

func TestUsageRecordFilters(t *testing.T) {
	s := New(nil, nil)
	addRecord(s, "physics", "alice", "2024-Q1", 100)
	addRecord(s, "physics", "bob", "2024-Q1", 50)
	addRecord(s, "physics", "alice", "2024-Q2", 25)
	addRecord(s, "chem", "alice", "2024-Q1", 10)

	if got := len(s.UsageRecords(Filter{})); got != 4 {
		t.Errorf("unfiltered = %d records, want 4", got)
	}
	if got := len(s.UsageRecords(Filter{Account: "physics"})); got != 3 {
		t.Errorf("account filter = %d records, want 3", got)
	}
	if got := len(s.UsageRecords(Filter{Account: "physics", User: "alice"})); got != 2 {
		t.Errorf("account+user filter = %d records, want 2", got)
	}
	if got := len(s.UsageRecords(Filter{Account: "physics", User: "alice", Period: "2024-Q2"})); got != 1 {
		t.Errorf("full filter = %d records, want 1", got)
	}
	if got := len(s.UsageRecords(Filter{Account: "none"})); got != 0 {
		t.Errorf("no-match filter = %d records, want 0", got)
	}
}

func TestTotalUsage(t *testing.T) {
	s := New(nil, nil)
	addRecord(s, "physics", "alice", "2024-Q1", 100)
	addRecord(s, "physics", "bob", "2024-Q1", 50.5)
	addRecord(s, "physics", "alice", "2024-Q2", 25)

	if got := s.TotalUsage("physics", "2024-Q1"); got != 150.5 {
		t.Errorf("Q1 usage = %v, want 150.5", got)
	}
	if got := s.TotalUsage("physics", ""); got != 175.5 {
		t.Errorf("lifetime usage = %v, want 175.5", got)
	}
	if got := s.TotalUsage("physics", "2024-Q4"); got != 0 {
		t.Errorf("empty period usage = %v, want 0", got)
	}
	if got := s.TotalUsage("unknown", ""); got != 0 {
		t.Errorf("unknown account usage = %v, want 0", got)
	}
}

func TestNegativeUsageCorrections(t *testing.T) {
	s := New(nil, nil)
	addRecord(s, "physics", "alice", "2024-Q1", 100)
	addRecord(s, "physics", "alice", "2024-Q1", -40)

	if got := s.TotalUsage("physics", "2024-Q1"); got != 60 {
		t.Errorf("usage after correction = %v, want 60", got)
	}
}

func TestAllocationDefaultsForUnknown(t *testing.T) {
	s := New(nil, nil)
	if got := s.Allocation("never-created"); got != model.DefaultAllocation {
		t.Errorf("allocation = %v, want default %v", got, model.DefaultAllocation)
	}
	s.AddAccount("physics", "", "", "")
	if err := s.SetAllocation("physics", 2500); err != nil {
		t.Fatalf("SetAllocation: %v", err)
	}
	if got := s.Allocation("physics"); got != 2500 {
		t.Errorf("allocation = %v, want 2500", got)
	}
}

func TestDeleteAccountPreservesLedger(t *testing.T) {
	s := New(nil, nil)
	s.AddAccount("physics", "", "", "")
	s.AddAssociation("alice", "physics", nil)
	addRecord(s, "physics", "alice", "2024-Q1", 100)

	s.DeleteAccount("physics")

	if _, ok := s.Account("physics"); ok {
		t.Fatal("account still present after DeleteAccount")
	}
	if got := len(s.UsageRecords(Filter{Account: "physics"})); got != 1 {
		t.Errorf("ledger records = %d after DeleteAccount, want 1", got)
	}
	if _, ok := s.Association("alice", "physics"); !ok {
		t.Error("association removed by DeleteAccount")
	}
}

func TestPurgeCascades(t *testing.T) {
	s := New(nil, nil)
	s.AddAccount("physics", "", "", "")
	s.AddAccount("chem", "", "", "")
	s.AddAssociation("alice", "physics", nil)
	s.AddAssociation("alice", "chem", nil)
	addRecord(s, "physics", "alice", "2024-Q1", 100)
	addRecord(s, "chem", "alice", "2024-Q1", 10)
	s.AddJob(model.Job{JobID: "j1", Account: "physics", User: "alice"})
	s.AddJob(model.Job{JobID: "j2", Account: "chem", User: "alice"})

	s.Purge("physics")

	if _, ok := s.Account("physics"); ok {
		t.Fatal("account still present after Purge")
	}
	if got := len(s.UsageRecords(Filter{Account: "physics"})); got != 0 {
		t.Errorf("physics records = %d after Purge, want 0", got)
	}
	if _, ok := s.Association("alice", "physics"); ok {
		t.Error("physics association survived Purge")
	}
	if _, ok := s.Job("j1"); ok {
		t.Error("physics job survived Purge")
	}
	// unrelated account untouched
	if got := len(s.UsageRecords(Filter{Account: "chem"})); got != 1 {
		t.Errorf("chem records = %d after Purge, want 1", got)
	}
	if _, ok := s.Job("j2"); !ok {
		t.Error("chem job removed by Purge")
	}
}

func TestAccountUsers(t *testing.T) {
	s := New(nil, nil)
	s.AddAssociation("carol", "physics", nil)
	s.AddAssociation("alice", "physics", nil)
	s.AddAssociation("bob", "chem", nil)

	users := s.AccountUsers("physics")
	if len(users) != 2 || users[0] != "alice" || users[1] != "carol" {
		t.Fatalf("AccountUsers = %v, want [alice carol]", users)
	}
}

func TestJobsFiltered(t *testing.T) {
	s := New(nil, nil)
	s.AddJob(model.Job{JobID: "b", Account: "physics", User: "alice"})
	s.AddJob(model.Job{JobID: "a", Account: "physics", User: "bob"})
	s.AddJob(model.Job{JobID: "c", Account: "chem", User: "alice"})

	jobs := s.Jobs("physics", "")
	if len(jobs) != 2 {
		t.Fatalf("expected 2 physics jobs, got %d", len(jobs))
	}
	if jobs[0].JobID != "a" || jobs[1].JobID != "b" {
		t.Errorf("jobs not sorted by id: %v, %v", jobs[0].JobID, jobs[1].JobID)
	}
	if got := len(s.Jobs("physics", "alice")); got != 1 {
		t.Errorf("account+user filter = %d jobs, want 1", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	state := &fakeState{}
	s := New(state, nil)
	s.AddAccount("physics", "Physics dept", "uni", "root")
	if err := s.SetAllocation("physics", 2000); err != nil {
		t.Fatalf("SetAllocation: %v", err)
	}
	if err := s.UpdateAccount("physics", func(a *model.Account) {
		a.Limits[model.LimitKey{Kind: model.LimitGrpTRESMins, Resource: model.ResourceBilling}] = 60000
		a.LastPeriod = "2024-Q1"
	}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	s.AddUser("alice", "physics")
	s.AddAssociation("alice", "physics", nil)
	addRecord(s, "physics", "alice", "2024-Q1", 123.5)
	s.AddJob(model.Job{JobID: "j1", Account: "physics", User: "alice", State: model.JobStateCompleted})
	s.SaveState()

	restored := New(state, nil)
	acct, ok := restored.Account("physics")
	if !ok {
		t.Fatal("account missing after restore")
	}
	if acct.Allocation != 2000 || acct.LastPeriod != "2024-Q1" {
		t.Errorf("restored account = %+v", acct)
	}
	key := model.LimitKey{Kind: model.LimitGrpTRESMins, Resource: model.ResourceBilling}
	if acct.Limits[key] != 60000 {
		t.Errorf("restored limit = %d, want 60000", acct.Limits[key])
	}
	if _, ok := restored.User("alice"); !ok {
		t.Error("user missing after restore")
	}
	if _, ok := restored.Association("alice", "physics"); !ok {
		t.Error("association missing after restore")
	}
	if got := restored.TotalUsage("physics", "2024-Q1"); got != 123.5 {
		t.Errorf("restored usage = %v, want 123.5", got)
	}
	if _, ok := restored.Job("j1"); !ok {
		t.Error("job missing after restore")
	}
}
