package model

import "time"

// CarryoverBreakdown records every input and output of one carryover
// calculation so callers can audit the arithmetic.
type CarryoverBreakdown struct {
	PreviousUsage          float64 `json:"previous_usage"`
	BaseAllocation         float64 `json:"base_allocation"`
	DaysElapsed            int     `json:"days_elapsed"`
	DecayFactor            float64 `json:"decay_factor"`
	EffectivePreviousUsage float64 `json:"effective_previous_usage"`
	UnusedAllocation       float64 `json:"unused_allocation"`
	NewTotalAllocation     float64 `json:"new_total_allocation"`
}

// PeriodicSettings is the full set of limits derived for an account in a
// period. Plain data; rendering belongs to the caller.
type PeriodicSettings struct {
	Account             string             `json:"account"`
	Period              string             `json:"period"`
	BaseAllocation      float64            `json:"base_allocation"`
	TotalAllocation     float64            `json:"total_allocation"`
	Fairshare           int                `json:"fairshare"`
	QOSThreshold        float64            `json:"qos_threshold"`
	GraceLimit          float64            `json:"grace_limit"`
	BillingMinutes      int64              `json:"billing_minutes"`
	GraceBillingMinutes int64              `json:"grace_billing_minutes"`
	LimitKind           LimitKind          `json:"limit_type"`
	Carryover           CarryoverBreakdown `json:"carryover_details"`
	Timestamp           time.Time          `json:"timestamp"`
}

// ThresholdStatus is the result of comparing current-period usage against
// the derived soft and hard limits.
type ThresholdStatus struct {
	Account           string   `json:"account"`
	CurrentUsage      float64  `json:"current_usage"`
	QOSThreshold      float64  `json:"qos_threshold"`
	GraceLimit        float64  `json:"grace_limit"`
	PercentUsed       float64  `json:"percentage_used"`
	Status            QOSLevel `json:"threshold_status"`
	RecommendedAction string   `json:"recommended_action"`
}

// UsageSummary is a point-in-time view of an account's consumption.
type UsageSummary struct {
	Account       string  `json:"account"`
	CurrentPeriod string  `json:"current_period"`
	PeriodUsage   float64 `json:"period_usage"`
	TotalUsage    float64 `json:"total_usage"`
	Allocation    float64 `json:"allocation"`
	Remaining     float64 `json:"remaining"`
	PercentUsed   float64 `json:"percentage_used"`
}
