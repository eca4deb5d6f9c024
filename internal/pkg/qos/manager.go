// Package qos manages account service levels. Levels are set directly from
// threshold comparisons at call time; the manager holds no timers and no
// transition history.
package qos

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slurmemu/internal/pkg/clock"
	"slurmemu/internal/pkg/model"
	"slurmemu/internal/pkg/store"
)

// ErrUnknownLevel rejects level names outside the known set.
var ErrUnknownLevel = errors.New("unknown qos level")

// Fine-grained threshold statuses reported alongside level changes.
const (
	StatusNormal       = "normal"
	StatusApproaching  = "approaching_threshold"
	StatusSoftExceeded = "soft_limit_exceeded"
	StatusHardExceeded = "hard_limit_exceeded"
)

// approachRatio marks usage at or above this fraction of the soft
// threshold as approaching it.
const approachRatio = 0.9

// LevelInfo is display metadata for a QoS level. It never influences
// transition decisions.
type LevelInfo struct {
	PriorityWeight int    `json:"priority_weight"`
	MaxSubmitJobs  *int   `json:"max_submit_jobs,omitempty"`
	Description    string `json:"description"`
}

var levelInfos = map[model.QOSLevel]LevelInfo{
	model.QOSNormal: {
		PriorityWeight: 1000,
		Description:    "Normal priority jobs",
	},
	model.QOSSlowdown: {
		// high weight means lower effective priority
		PriorityWeight: 500000,
		Description:    "Reduced priority for over-threshold usage",
	},
	model.QOSBlocked: {
		PriorityWeight: 1000000,
		MaxSubmitJobs:  new(int),
		Description:    "Jobs blocked due to hard limit exceeded",
	},
}

// Manager applies threshold-driven QoS transitions to accounts.
type Manager struct {
	store  *store.Store
	clock  *clock.Clock
	logger *slog.Logger
}

// New returns a Manager over the given store and clock.
func New(s *store.Store, c *clock.Clock, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: s, clock: c, logger: logger}
}

// AccountLevel returns the account's current level, normal for unknown
// accounts.
func (m *Manager) AccountLevel(account string) model.QOSLevel {
	if acct, ok := m.store.Account(account); ok {
		return acct.QOS
	}
	return model.QOSNormal
}

// Set changes an account's level. It fails on an unknown level or account;
// a successful change persists the store snapshot.
func (m *Manager) Set(account string, level model.QOSLevel) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	var old model.QOSLevel
	err := m.store.UpdateAccount(account, func(a *model.Account) {
		old = a.QOS
		a.QOS = level
	})
	if err != nil {
		return fmt.Errorf("account %q: %w", account, err)
	}
	m.store.SaveState()
	m.logger.Info("qos changed",
		slog.String("account", account),
		slog.String("old", string(old)),
		slog.String("new", string(level)))
	return nil
}

// CheckResult reports one check-and-update pass over an account.
type CheckResult struct {
	Account      string         `json:"account"`
	CurrentUsage float64        `json:"current_usage"`
	QOSThreshold float64        `json:"qos_threshold"`
	GraceLimit   float64        `json:"grace_limit"`
	CurrentLevel model.QOSLevel `json:"current_qos"`
	NewLevel     model.QOSLevel `json:"new_qos"`
	ActionTaken  string         `json:"action_taken,omitempty"`
	Status       string         `json:"threshold_status"`
}

// CheckAndUpdate derives the target level from usage versus the soft
// threshold and grace limit, applies it if it differs from the current
// level (setting the same level again is a no-op), and reports the
// transition. Direct jumps between any two levels are legal.
func (m *Manager) CheckAndUpdate(account string, usage, threshold, grace float64) CheckResult {
	current := m.AccountLevel(account)
	target := determineLevel(usage, threshold, grace)

	result := CheckResult{
		Account:      account,
		CurrentUsage: usage,
		QOSThreshold: threshold,
		GraceLimit:   grace,
		CurrentLevel: current,
		NewLevel:     target,
		Status:       thresholdStatus(usage, threshold, grace),
	}
	if current != target {
		if err := m.Set(account, target); err != nil {
			result.ActionTaken = "qos_change_failed"
		} else {
			result.ActionTaken = fmt.Sprintf("qos_change:%s→%s", current, target)
		}
	}
	return result
}

// RestoreForNewPeriod forces an account back to normal at a period
// boundary, regardless of current usage: a new period starts clean until
// usage re-accumulates.
func (m *Manager) RestoreForNewPeriod(account string) error {
	return m.Set(account, model.QOSNormal)
}

// Info returns display metadata for a level.
func Info(level model.QOSLevel) (LevelInfo, bool) {
	info, ok := levelInfos[level]
	return info, ok
}

// Levels lists the known levels in increasing severity.
func Levels() []model.QOSLevel { return model.QOSLevels }

func determineLevel(usage, threshold, grace float64) model.QOSLevel {
	switch {
	case usage >= grace:
		return model.QOSBlocked
	case usage >= threshold:
		return model.QOSSlowdown
	default:
		return model.QOSNormal
	}
}

func thresholdStatus(usage, threshold, grace float64) string {
	switch {
	case usage >= grace:
		return StatusHardExceeded
	case usage >= threshold:
		return StatusSoftExceeded
	case usage >= threshold*approachRatio:
		return StatusApproaching
	default:
		return StatusNormal
	}
}

// Impact severities and types reported by SimulateImpact.
const (
	ImpactNone        = "none"
	ImpactWarning     = "warning"
	ImpactCritical    = "critical"
	ImpactImprovement = "improvement"

	ImpactTypeNoChange    = "no_change"
	ImpactTypeRestriction = "restriction"
	ImpactTypeImprovement = "improvement"
)

// Impact describes what a projected usage figure would do to an account's
// level, without applying anything.
type Impact struct {
	Account         string         `json:"account"`
	Description     string         `json:"impact_description"`
	Type            string         `json:"impact_type"`
	AffectedUsers   []string       `json:"affected_users"`
	CurrentLevel    model.QOSLevel `json:"current_qos"`
	ProjectedLevel  model.QOSLevel `json:"projected_qos"`
	ProjectedUsage  float64        `json:"projected_usage"`
	QOSChangeNeeded bool           `json:"qos_change_needed"`
	Severity        string         `json:"impact_severity"`
}

// SimulateImpact previews the level a projected usage would produce and
// who it would affect.
func (m *Manager) SimulateImpact(account string, projectedUsage, threshold, grace float64) Impact {
	current := m.AccountLevel(account)
	projected := determineLevel(projectedUsage, threshold, grace)

	impact := Impact{
		Account:         account,
		AffectedUsers:   m.store.AccountUsers(account),
		CurrentLevel:    current,
		ProjectedLevel:  projected,
		ProjectedUsage:  projectedUsage,
		QOSChangeNeeded: current != projected,
		Severity:        impactSeverity(current, projected),
	}
	switch {
	case current == projected:
		impact.Description = fmt.Sprintf("No QoS change needed - remains at %s", current)
		impact.Type = ImpactTypeNoChange
	case projected == model.QOSBlocked:
		impact.Description = "Account will be blocked due to usage exceeding grace limit"
		impact.Type = ImpactTypeRestriction
	case projected == model.QOSSlowdown:
		impact.Description = "Account will be slowed down due to usage exceeding threshold"
		impact.Type = ImpactTypeRestriction
	default:
		impact.Description = fmt.Sprintf("Account QoS improved from %s to %s", current, projected)
		impact.Type = ImpactTypeImprovement
	}
	return impact
}

func impactSeverity(current, projected model.QOSLevel) string {
	switch {
	case projected.Severity() > current.Severity() && projected == model.QOSBlocked:
		return ImpactCritical
	case projected.Severity() > current.Severity() && projected == model.QOSSlowdown:
		return ImpactWarning
	case projected.Severity() < current.Severity():
		return ImpactImprovement
	default:
		return ImpactNone
	}
}

// ReportEntry is one account's line in a Report.
type ReportEntry struct {
	Level model.QOSLevel `json:"qos"`
	Usage float64        `json:"usage"`
	Info  LevelInfo      `json:"qos_info"`
}

// Report is a point-in-time QoS status report over a set of accounts.
type Report struct {
	Timestamp time.Time              `json:"timestamp"`
	Period    string                 `json:"period"`
	Accounts  map[string]ReportEntry `json:"accounts"`
	Summary   map[model.QOSLevel]int `json:"summary"`
}

// GenerateReport summarizes level and current-period usage per account.
func (m *Manager) GenerateReport(accounts []string) Report {
	period := m.clock.Period()
	report := Report{
		Timestamp: m.clock.Now(),
		Period:    period,
		Accounts:  make(map[string]ReportEntry, len(accounts)),
		Summary:   map[model.QOSLevel]int{model.QOSNormal: 0, model.QOSSlowdown: 0, model.QOSBlocked: 0},
	}
	for _, account := range accounts {
		level := m.AccountLevel(account)
		info, _ := Info(level)
		report.Accounts[account] = ReportEntry{
			Level: level,
			Usage: m.store.TotalUsage(account, period),
			Info:  info,
		}
		report.Summary[level]++
	}
	return report
}
