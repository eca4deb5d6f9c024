// Package store holds the emulator's accounting state: accounts, users,
// associations, the append-only usage ledger, and derived jobs. It is a
// pure data and query layer; limit policy lives elsewhere.
package store

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"slurmemu/internal/pkg/model"
)

// Sentinel errors surfaced at the store boundary.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUserNotFound    = errors.New("user not found")
)

// StateStore persists store snapshots between runs. Save must be
// best-effort; Load reports whether prior state was recovered.
type StateStore interface {
	Save(v any)
	Load(v any) bool
}

// Store is the in-memory accounting database. One mutex guards all state;
// the original design defines no conflict semantics for concurrent writers,
// so every operation serializes behind it.
type Store struct {
	mu           sync.Mutex
	accounts     map[string]*model.Account
	users        map[string]*model.User
	associations map[string]*model.Association
	usageRecords []model.UsageRecord
	jobs         map[string]*model.Job
	state        StateStore
	logger       *slog.Logger
}

// New creates a Store seeded with the root account, then best-effort
// restores a persisted snapshot. A nil state disables persistence.
func New(state StateStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		accounts:     make(map[string]*model.Account),
		users:        make(map[string]*model.User),
		associations: make(map[string]*model.Association),
		jobs:         make(map[string]*model.Job),
		state:        state,
		logger:       logger,
	}
	s.AddAccount("root", "Root account", "system", "")
	if state != nil {
		var snap snapshot
		if state.Load(&snap) {
			s.restore(snap)
		}
	}
	return s
}

// AddAccount creates or replaces an account with default fairshare,
// allocation, and QoS level.
func (s *Store) AddAccount(name, description, organization, parent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[name] = &model.Account{
		Name:         name,
		Description:  description,
		Organization: organization,
		Parent:       parent,
		Fairshare:    1,
		QOS:          model.QOSNormal,
		Limits:       make(model.Limits),
		Allocation:   model.DefaultAllocation,
	}
}

// Account returns a copy of the named account.
func (s *Store) Account(name string) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[name]
	if !ok {
		return model.Account{}, false
	}
	return *acct, true
}

// Accounts lists all accounts sorted by name.
func (s *Store) Accounts() model.Accounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.Accounts, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, *acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateAccount mutates the named account under the store lock. All policy
// writers (calculator, QoS manager) go through here so field mutation stays
// serialized.
func (s *Store) UpdateAccount(name string, mutate func(*model.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[name]
	if !ok {
		return ErrAccountNotFound
	}
	mutate(acct)
	return nil
}

// DeleteAccount removes the account entity only. Usage records, jobs, and
// associations survive: the ledger is an append-only audit trail independent
// of account lifecycle. Cascading cleanup is Purge.
func (s *Store) DeleteAccount(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, name)
}

// Purge is the destructive cleanup path used by tooling: it deletes the
// account plus every usage record, association, and job referencing it, so
// no orphaned references remain.
func (s *Store) Purge(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, name)
	kept := s.usageRecords[:0]
	for _, r := range s.usageRecords {
		if r.Account != name {
			kept = append(kept, r)
		}
	}
	s.usageRecords = kept
	for key, assoc := range s.associations {
		if assoc.Account == name {
			delete(s.associations, key)
		}
	}
	for id, job := range s.jobs {
		if job.Account == name {
			delete(s.jobs, id)
		}
	}
}

// AddUser creates or replaces a user.
func (s *Store) AddUser(name, defaultAccount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = &model.User{Name: name, DefaultAccount: defaultAccount}
}

// User returns a copy of the named user.
func (s *Store) User(name string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return model.User{}, false
	}
	return *u, true
}

// Users lists all users sorted by name.
func (s *Store) Users() model.Users {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.Users, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddAssociation grants user permission to charge account.
func (s *Store) AddAssociation(user, account string, limits model.Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limits == nil {
		limits = make(model.Limits)
	}
	assoc := &model.Association{Account: account, User: user, Limits: limits}
	s.associations[assoc.Key()] = assoc
}

// Association returns the association for a user/account pair.
func (s *Store) Association(user, account string) (model.Association, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.associations[model.AssocKey(user, account)]
	if !ok {
		return model.Association{}, false
	}
	return *a, true
}

// DeleteAssociation removes the association for a user/account pair.
func (s *Store) DeleteAssociation(user, account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.associations, model.AssocKey(user, account))
}

// AccountUsers lists the user names associated with an account, sorted.
func (s *Store) AccountUsers(account string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []string
	for _, assoc := range s.associations {
		if assoc.Account == account && assoc.User != "" {
			users = append(users, assoc.User)
		}
	}
	sort.Strings(users)
	return users
}

// AppendUsage appends one immutable record to the ledger.
func (s *Store) AppendUsage(record model.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageRecords = append(s.usageRecords, record)
}

// Filter selects usage records; empty fields match everything and the set
// fields combine as a conjunction.
type Filter struct {
	Account string
	User    string
	Period  string
}

// UsageRecords returns ledger entries matching the filter, in append order.
func (s *Store) UsageRecords(f Filter) model.UsageRecords {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.UsageRecords, 0)
	for _, r := range s.usageRecords {
		if f.Account != "" && r.Account != f.Account {
			continue
		}
		if f.User != "" && r.User != f.User {
			continue
		}
		if f.Period != "" && r.Period != f.Period {
			continue
		}
		out = append(out, r)
	}
	return out
}

// TotalUsage sums node-hours for an account, scoped to one period or, with
// an empty period, across the whole ledger. This recomputed sum is the
// authoritative usage figure; no aggregate is cached.
func (s *Store) TotalUsage(account, period string) float64 {
	var total float64
	for _, r := range s.UsageRecords(Filter{Account: account, Period: period}) {
		total += r.NodeHours
	}
	return total
}

// Allocation returns the base per-period allocation, defaulting for
// unknown accounts.
func (s *Store) Allocation(account string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[account]; ok {
		return acct.Allocation
	}
	return model.DefaultAllocation
}

// SetAllocation sets the base per-period allocation for an account.
func (s *Store) SetAllocation(account string, allocation float64) error {
	return s.UpdateAccount(account, func(a *model.Account) { a.Allocation = allocation })
}

// ResetRawUsage marks that a manual usage reset occurred. This is metadata
// only; the ledger itself is never touched by period transitions.
func (s *Store) ResetRawUsage(account string) error {
	return s.UpdateAccount(account, func(a *model.Account) { a.RawUsageReset = true })
}

// AddJob records a derived or explicit job row.
func (s *Store) AddJob(job model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = &job
}

// Job returns a copy of the job with the given id.
func (s *Store) Job(id string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}

// Jobs lists jobs filtered by account and user; empty fields match all.
// Results are sorted by job id for stable output.
func (s *Store) Jobs(account, user string) model.Jobs {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.Jobs, 0)
	for _, j := range s.jobs {
		if account != "" && j.Account != account {
			continue
		}
		if user != "" && j.User != user {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// SaveState persists a snapshot best-effort. Callers never see failures.
func (s *Store) SaveState() {
	if s.state == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.state.Save(snap)
}

type snapshot struct {
	Accounts     map[string]model.Account     `json:"accounts"`
	Users        map[string]model.User        `json:"users"`
	Associations map[string]model.Association `json:"associations"`
	UsageRecords model.UsageRecords           `json:"usage_records"`
	Jobs         map[string]model.Job         `json:"jobs"`
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		Accounts:     make(map[string]model.Account, len(s.accounts)),
		Users:        make(map[string]model.User, len(s.users)),
		Associations: make(map[string]model.Association, len(s.associations)),
		UsageRecords: make(model.UsageRecords, len(s.usageRecords)),
		Jobs:         make(map[string]model.Job, len(s.jobs)),
	}
	for name, acct := range s.accounts {
		snap.Accounts[name] = *acct
	}
	for name, u := range s.users {
		snap.Users[name] = *u
	}
	for key, assoc := range s.associations {
		snap.Associations[key] = *assoc
	}
	copy(snap.UsageRecords, s.usageRecords)
	for id, j := range s.jobs {
		snap.Jobs[id] = *j
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*model.Account, len(snap.Accounts))
	for name, acct := range snap.Accounts {
		a := acct
		if a.Limits == nil {
			a.Limits = make(model.Limits)
		}
		s.accounts[name] = &a
	}
	s.users = make(map[string]*model.User, len(snap.Users))
	for name, u := range snap.Users {
		uu := u
		s.users[name] = &uu
	}
	s.associations = make(map[string]*model.Association, len(snap.Associations))
	for key, assoc := range snap.Associations {
		a := assoc
		s.associations[key] = &a
	}
	s.usageRecords = snap.UsageRecords
	s.jobs = make(map[string]*model.Job, len(snap.Jobs))
	for id, j := range snap.Jobs {
		jj := j
		s.jobs[id] = &jj
	}
}
