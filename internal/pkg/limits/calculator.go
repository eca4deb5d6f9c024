// Package limits implements the periodic limits engine: carryover with
// exponential decay across period boundaries, derived fairshare and billing
// limits, and usage threshold checks.
package limits

import (
	"fmt"
	"log/slog"
	"math"

	"slurmemu/internal/pkg/clock"
	"slurmemu/internal/pkg/model"
	"slurmemu/internal/pkg/slurmconf"
	"slurmemu/internal/pkg/store"
)

// quarterTransitionDays is the fixed day count used for quarter-to-quarter
// decay. It is deliberately not derived from period bounds: the original
// behavior pins 90 days for every transition and downstream tooling depends
// on the resulting decay factors.
const quarterTransitionDays = 90

// defaultSiblingAccounts stands in for real account-tree fairshare, which
// this engine does not model.
const defaultSiblingAccounts = 3

// Recommended actions attached to threshold checks, consumed by external
// reporting.
const (
	ActionSetQOSNormal   = "set_qos_normal"
	ActionSetQOSSlowdown = "set_qos_slowdown"
	ActionBlockJobs      = "block_jobs"
)

// Options tune one settings calculation. The zero value is not useful;
// start from DefaultOptions.
type Options struct {
	GraceRatio       float64
	CarryoverEnabled bool
	ForceCarryover   bool
	LimitKind        model.LimitKind
}

// DefaultOptions returns the standard calculation options: 20% grace,
// carryover on, GrpTRESMins limits.
func DefaultOptions() Options {
	return Options{
		GraceRatio:       0.2,
		CarryoverEnabled: true,
		LimitKind:        model.LimitGrpTRESMins,
	}
}

// Calculator derives periodic settings from the store and clock. It holds
// no per-account state: every call recomputes from the ledger, so repeated
// calls without usage or period changes return identical results.
type Calculator struct {
	store  *store.Store
	clock  *clock.Clock
	logger *slog.Logger

	halfLifeDays     float64
	billingWeights   map[model.ResourceKind]float64
	manualUsageReset bool
	qosWeight        int
	fairshareWeight  int
}

// New returns a Calculator configured from conf; a nil conf uses the
// documented defaults.
func New(s *store.Store, c *clock.Clock, conf *slurmconf.Config, logger *slog.Logger) *Calculator {
	if conf == nil {
		conf = slurmconf.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		store:            s,
		clock:            c,
		logger:           logger,
		halfLifeDays:     conf.DecayHalfLifeDays(),
		billingWeights:   conf.TRESBillingWeights(),
		manualUsageReset: conf.ManualUsageReset(),
		qosWeight:        conf.QOSWeight(),
		fairshareWeight:  conf.FairshareWeight(),
	}
}

// HalfLifeDays returns the decay half-life in effect.
func (c *Calculator) HalfLifeDays() float64 { return c.halfLifeDays }

// DecayFactor computes 2^(-daysElapsed/halfLife). A non-positive halfLife
// selects the configured half-life.
func (c *Calculator) DecayFactor(daysElapsed int, halfLife float64) float64 {
	if halfLife <= 0 {
		halfLife = c.halfLifeDays
	}
	return math.Exp2(-float64(daysElapsed) / halfLife)
}

// Fairshare derives a share weight from an allocation, splitting it across
// the fixed sibling count. Never below 1.
func (c *Calculator) Fairshare(allocation float64) int {
	fs := int(math.Floor(allocation)) / defaultSiblingAccounts
	if fs < 1 {
		fs = 1
	}
	return fs
}

// BillingMinutes converts node-hours to whole billing minutes.
func (c *Calculator) BillingMinutes(nodeHours float64) int64 {
	return int64(nodeHours * 60)
}

// BillingUnits converts a raw TRES breakdown to billing units using the
// configured weights. Unweighted resource kinds contribute nothing.
func (c *Calculator) BillingUnits(tres model.TRES) float64 {
	var units float64
	for kind, usage := range tres {
		if w, ok := c.billingWeights[kind]; ok {
			units += float64(usage) * w
		}
	}
	return units
}

// Carryover computes the allocation rolling from fromPeriod into toPeriod:
// the previous period's usage is decayed over the fixed 90-day quarter
// transition, whatever allocation it left unconsumed carries over on top of
// the base. The full breakdown is returned for observability.
func (c *Calculator) Carryover(account, fromPeriod, toPeriod string) (float64, model.CarryoverBreakdown) {
	previousUsage := c.store.TotalUsage(account, fromPeriod)
	baseAllocation := c.store.Allocation(account)

	daysElapsed := quarterTransitionDays
	decayFactor := c.DecayFactor(daysElapsed, 0)
	effectivePrevious := previousUsage * decayFactor
	unused := math.Max(0, baseAllocation-effectivePrevious)
	newTotal := baseAllocation + unused

	return newTotal, model.CarryoverBreakdown{
		PreviousUsage:          previousUsage,
		BaseAllocation:         baseAllocation,
		DaysElapsed:            daysElapsed,
		DecayFactor:            decayFactor,
		EffectivePreviousUsage: effectivePrevious,
		UnusedAllocation:       unused,
		NewTotalAllocation:     newTotal,
	}
}

// PeriodicSettings computes the effective settings for account in the
// current period. Read-only and idempotent: it never writes back to the
// account. Carryover applies only when the account's last period is set,
// differs from the current one, and carryover is enabled (or forced).
func (c *Calculator) PeriodicSettings(account string, opts *Options) (model.PeriodicSettings, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}

	acct, ok := c.store.Account(account)
	if !ok {
		return model.PeriodicSettings{}, fmt.Errorf("account %q: %w", account, store.ErrAccountNotFound)
	}

	currentPeriod := c.clock.Period()
	baseAllocation := acct.Allocation

	var totalAllocation float64
	var breakdown model.CarryoverBreakdown

	transition := acct.LastPeriod != "" && acct.LastPeriod != currentPeriod && o.CarryoverEnabled
	if transition || o.ForceCarryover {
		fromPeriod := acct.LastPeriod
		if fromPeriod == "" {
			prev, err := clock.PreviousPeriod(currentPeriod)
			if err != nil {
				return model.PeriodicSettings{}, err
			}
			fromPeriod = prev
		}
		totalAllocation, breakdown = c.Carryover(account, fromPeriod, currentPeriod)
	} else {
		totalAllocation = baseAllocation
		breakdown = model.CarryoverBreakdown{
			BaseAllocation:     baseAllocation,
			DecayFactor:        1.0,
			NewTotalAllocation: baseAllocation,
		}
	}

	graceLimit := totalAllocation * (1.0 + o.GraceRatio)

	return model.PeriodicSettings{
		Account:             account,
		Period:              currentPeriod,
		BaseAllocation:      baseAllocation,
		TotalAllocation:     totalAllocation,
		Fairshare:           c.Fairshare(totalAllocation),
		QOSThreshold:        totalAllocation, // slowdown triggers at 100% of the effective allocation
		GraceLimit:          graceLimit,
		BillingMinutes:      c.BillingMinutes(totalAllocation),
		GraceBillingMinutes: c.BillingMinutes(graceLimit),
		LimitKind:           o.LimitKind,
		Carryover:           breakdown,
		Timestamp:           c.clock.Now(),
	}, nil
}

// CheckUsageThresholds compares current-period usage against the settings'
// soft and hard limits. A nil settings computes fresh ones.
func (c *Calculator) CheckUsageThresholds(account string, settings *model.PeriodicSettings) (model.ThresholdStatus, error) {
	if settings == nil {
		s, err := c.PeriodicSettings(account, nil)
		if err != nil {
			return model.ThresholdStatus{}, err
		}
		settings = &s
	}

	currentUsage := c.store.TotalUsage(account, c.clock.Period())

	status := model.ThresholdStatus{
		Account:      account,
		CurrentUsage: currentUsage,
		QOSThreshold: settings.QOSThreshold,
		GraceLimit:   settings.GraceLimit,
	}
	if settings.TotalAllocation > 0 {
		status.PercentUsed = currentUsage / settings.TotalAllocation * 100
	}

	switch {
	case currentUsage >= settings.GraceLimit:
		status.Status = model.QOSBlocked
		status.RecommendedAction = ActionBlockJobs
	case currentUsage >= settings.QOSThreshold:
		status.Status = model.QOSSlowdown
		status.RecommendedAction = ActionSetQOSSlowdown
	default:
		status.Status = model.QOSNormal
		status.RecommendedAction = ActionSetQOSNormal
	}
	return status, nil
}

// ApplyPeriodTransition computes settings and writes them onto the account:
// fairshare, the billing-minutes limit under the configured limit kind, a
// QoS reset to normal, and the new last period. This is the only place that
// advances an account's last period.
func (c *Calculator) ApplyPeriodTransition(account string, opts *Options) (model.PeriodicSettings, error) {
	settings, err := c.PeriodicSettings(account, opts)
	if err != nil {
		return model.PeriodicSettings{}, err
	}

	limitKey := model.LimitKey{Kind: settings.LimitKind, Resource: model.ResourceBilling}
	err = c.store.UpdateAccount(account, func(a *model.Account) {
		a.LastPeriod = settings.Period
		a.Fairshare = settings.Fairshare
		if a.Limits == nil {
			a.Limits = make(model.Limits)
		}
		a.Limits[limitKey] = settings.BillingMinutes
		a.QOS = model.QOSNormal
	})
	if err != nil {
		return model.PeriodicSettings{}, fmt.Errorf("account %q: %w", account, err)
	}

	c.logger.Info("period transition applied",
		slog.String("account", account),
		slog.String("period", settings.Period),
		slog.Float64("total_allocation", settings.TotalAllocation),
		slog.Int("fairshare", settings.Fairshare))

	c.store.SaveState()
	return settings, nil
}
