package model

// Accounts is a slice of Account.
type Accounts []Account

// Account represents an accounting entity that usage is charged against.
//
// Field reference (mirrors the sacctmgr account view):
//  - name:          unique key
//  - description:   free text
//  - organization:  owning organization
//  - parent:        optional parent account name
//  - fairshare:     scheduling share weight, always >= 1
//  - qos:           current service level (normal/slowdown/blocked)
//  - limits:        limit values keyed by (limit kind, resource kind)
//  - last_period:   last period a transition was applied for, empty if never
//  - allocation:    base allocation in node-hours per period
type Account struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Organization  string   `json:"organization"`
	Parent        string   `json:"parent,omitempty"`
	Fairshare     int      `json:"fairshare"`
	QOS           QOSLevel `json:"qos"`
	Limits        Limits   `json:"limits"`
	LastPeriod    string   `json:"last_period,omitempty"`
	Allocation    float64  `json:"allocation"`
	RawUsageReset bool     `json:"raw_usage_reset,omitempty"`
}

// DefaultAllocation is the base per-period allocation, in node-hours,
// assumed for accounts that never had one set.
const DefaultAllocation = 1000
