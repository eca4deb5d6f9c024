package model

import (
	"fmt"
	"strings"
)

// LimitKind enumerates the limit families an account can carry.
type LimitKind string

const (
	LimitGrpTRESMins LimitKind = "GrpTRESMins"
	LimitMaxTRESMins LimitKind = "MaxTRESMins"
	LimitGrpTRES     LimitKind = "GrpTRES"
)

// ResourceKind enumerates trackable resources (TRES).
type ResourceKind string

const (
	ResourceBilling ResourceKind = "billing"
	ResourceCPU     ResourceKind = "CPU"
	ResourceMem     ResourceKind = "Mem"
	ResourceGPU     ResourceKind = "GRES/gpu"
	ResourceNode    ResourceKind = "node"
)

var knownLimitKinds = map[LimitKind]struct{}{
	LimitGrpTRESMins: {},
	LimitMaxTRESMins: {},
	LimitGrpTRES:     {},
}

var knownResourceKinds = map[ResourceKind]struct{}{
	ResourceBilling: {},
	ResourceCPU:     {},
	ResourceMem:     {},
	ResourceGPU:     {},
	ResourceNode:    {},
}

// LimitKey identifies one limit value on an account or association.
// It serializes as "<kind>:<resource>", e.g. "GrpTRESMins:billing",
// which keeps snapshots compatible with the sacctmgr-style key names.
type LimitKey struct {
	Kind     LimitKind
	Resource ResourceKind
}

func (k LimitKey) String() string {
	return string(k.Kind) + ":" + string(k.Resource)
}

// ParseLimitKey parses and validates a "<kind>:<resource>" key. Both parts
// must belong to the closed enumerations above.
func ParseLimitKey(s string) (LimitKey, error) {
	kind, resource, ok := strings.Cut(s, ":")
	if !ok {
		return LimitKey{}, fmt.Errorf("limit key %q: missing ':' separator", s)
	}
	k := LimitKey{Kind: LimitKind(kind), Resource: ResourceKind(resource)}
	if _, ok := knownLimitKinds[k.Kind]; !ok {
		return LimitKey{}, fmt.Errorf("limit key %q: unknown limit kind %q", s, kind)
	}
	if _, ok := knownResourceKinds[k.Resource]; !ok {
		return LimitKey{}, fmt.Errorf("limit key %q: unknown resource kind %q", s, resource)
	}
	return k, nil
}

// MarshalText implements encoding.TextMarshaler so Limits maps serialize
// with string keys.
func (k LimitKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler with full validation.
func (k *LimitKey) UnmarshalText(text []byte) error {
	parsed, err := ParseLimitKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Limits maps typed limit keys to their numeric values.
type Limits map[LimitKey]int64
