package model

import "time"

// TRES maps resource kinds to raw consumption figures.
type TRES map[ResourceKind]int64

// UsageRecords is a slice of UsageRecord.
type UsageRecords []UsageRecord

// UsageRecord is one append-only ledger entry. Records are immutable once
// written; corrections are additional signed injections, never updates.
//
// RawTRES is a synthetic per-node breakdown kept for report rendering only.
// Limit arithmetic always uses NodeHours.
type UsageRecord struct {
	Account      string    `json:"account"`
	User         string    `json:"user"`
	NodeHours    float64   `json:"node_hours"`
	BillingUnits float64   `json:"billing_units"`
	Timestamp    time.Time `json:"timestamp"`
	Period       string    `json:"period"`
	RawTRES      TRES      `json:"raw_tres"`
}

// Job states reported by the emulator. Injected usage always derives
// completed jobs; the other states exist for explicitly added jobs.
const (
	JobStateCompleted = "COMPLETED"
	JobStateRunning   = "RUNNING"
	JobStatePending   = "PENDING"
)

// Jobs is a slice of Job.
type Jobs []Job

// Job is a synthetic job row derived from injected usage (or added
// explicitly). It exists so sacct-style reports have job identities.
type Job struct {
	JobID      string     `json:"job_id"`
	Account    string     `json:"account"`
	User       string     `json:"user"`
	State      string     `json:"state"`
	NodeHours  float64    `json:"node_hours"`
	SubmitTime *time.Time `json:"submit_time,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}
