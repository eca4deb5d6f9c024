// Package usage appends consumption to the accounting ledger.
package usage

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"slurmemu/internal/pkg/clock"
	"slurmemu/internal/pkg/model"
	"slurmemu/internal/pkg/store"
)

// Standard node shape used to expand node-hours into a synthetic raw TRES
// breakdown. Reporting only; limit arithmetic never reads these.
const (
	cpusPerNode = 64
	memPerNode  = 512 // GB
	gpusPerNode = 4
)

// Injector writes usage records into the store, lazily creating the
// account, user, and association they reference.
type Injector struct {
	clock  *clock.Clock
	store  *store.Store
	logger *slog.Logger
}

// New returns an Injector over the given clock and store.
func New(c *clock.Clock, s *store.Store, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{clock: c, store: s, logger: logger}
}

// Inject appends nodeHours of usage for user in account. A zero at means
// the clock's current instant. The record's period label is derived from
// at, not from a live clock read, so historical backfill injections land in
// the period they belong to.
//
// nodeHours is accepted as-is: negative values are corrections and
// validation belongs to a higher layer.
func (in *Injector) Inject(account, user string, nodeHours float64, at time.Time) model.UsageRecord {
	if at.IsZero() {
		at = in.clock.Now()
	}

	if _, ok := in.store.User(user); !ok {
		in.store.AddUser(user, account)
	}
	if _, ok := in.store.Account(account); !ok {
		in.store.AddAccount(account, "Account "+account, "emulator", "")
	}
	if _, ok := in.store.Association(user, account); !ok {
		in.store.AddAssociation(user, account, nil)
	}

	record := model.UsageRecord{
		Account:      account,
		User:         user,
		NodeHours:    nodeHours,
		BillingUnits: nodeHours, // 1:1 for node-hour billing
		Timestamp:    at,
		Period:       clock.Quarter(at),
		RawTRES:      rawTRES(nodeHours),
	}
	in.store.AppendUsage(record)
	in.store.AddJob(deriveJob(record))

	in.logger.Info("usage injected",
		slog.String("account", account),
		slog.String("user", user),
		slog.Float64("node_hours", nodeHours),
		slog.String("period", record.Period),
		slog.Time("at", at))

	in.store.SaveState()
	return record
}

// Summary reports an account's consumption for the current period and
// lifetime, against its base allocation.
func (in *Injector) Summary(account string) model.UsageSummary {
	period := in.clock.Period()
	periodUsage := in.store.TotalUsage(account, period)
	allocation := in.store.Allocation(account)

	var pct float64
	if allocation > 0 {
		pct = periodUsage / allocation * 100
	}
	return model.UsageSummary{
		Account:       account,
		CurrentPeriod: period,
		PeriodUsage:   periodUsage,
		TotalUsage:    in.store.TotalUsage(account, ""),
		Allocation:    allocation,
		Remaining:     math.Max(0, allocation-periodUsage),
		PercentUsed:   pct,
	}
}

// rawTRES expands node-hours into per-resource figures using the standard
// node shape. The node-hours figure itself rides along for site agents
// that read it directly.
func rawTRES(nodeHours float64) model.TRES {
	return model.TRES{
		model.ResourceNode: int64(nodeHours),
		model.ResourceCPU:  int64(nodeHours * cpusPerNode),
		model.ResourceMem:  int64(nodeHours * memPerNode),
		model.ResourceGPU:  int64(nodeHours * gpusPerNode),
	}
}

// deriveJob synthesizes a completed job row for a usage record so job-level
// reports have identities to show.
func deriveJob(r model.UsageRecord) model.Job {
	at := r.Timestamp
	return model.Job{
		JobID:      uuid.NewString(),
		Account:    r.Account,
		User:       r.User,
		State:      model.JobStateCompleted,
		NodeHours:  r.NodeHours,
		SubmitTime: &at,
		StartTime:  &at,
		EndTime:    &at,
	}
}
