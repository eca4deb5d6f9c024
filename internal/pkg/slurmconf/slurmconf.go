// Package slurmconf parses slurm.conf files and exposes the handful of
// values the limits engine consumes. Only the priority/fairshare subset is
// interpreted; unknown keys are kept verbatim.
package slurmconf

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"slurmemu/internal/pkg/model"
)

// Sentinel values produced by Slurm time parsing.
const (
	Infinite = -1 // INFINITE / UNLIMITED / -1
	NoVal    = -2 // empty or unparseable
)

// Defaults applied when no config file is loaded or a key is absent.
const (
	DefaultHalfLifeDays    = 15.0
	DefaultQOSWeight       = 500000
	DefaultFairshareWeight = 259200
	DefaultDampening       = 3
)

// DefaultBillingWeights normalize raw TRES to node-hour-comparable billing
// units: 64 CPUs, 512 GB, or 4 GPUs each equal one unit.
func DefaultBillingWeights() map[model.ResourceKind]float64 {
	return map[model.ResourceKind]float64{
		model.ResourceCPU: 0.015625,
		model.ResourceMem: 0.001953125,
		model.ResourceGPU: 0.25,
	}
}

// Config is a read-only bag of interpreted slurm.conf values.
type Config struct {
	raw map[string]string

	decayHalfLifeMins int
	usageResetPeriod  *int // nil means manual reset only
	qosWeight         int
	fairshareWeight   int
	dampening         int
	billingWeights    map[model.ResourceKind]float64
	priorityFlags     []string
}

// Default returns a Config carrying the documented defaults.
func Default() *Config {
	return &Config{
		raw:               map[string]string{},
		decayHalfLifeMins: int(DefaultHalfLifeDays * 24 * 60),
		usageResetPeriod:  nil,
		qosWeight:         DefaultQOSWeight,
		fairshareWeight:   DefaultFairshareWeight,
		dampening:         DefaultDampening,
		billingWeights:    DefaultBillingWeights(),
		priorityFlags:     []string{"NO_NORMAL_ASSOC", "MAX_TRES"},
	}
}

// Load reads and interprets a slurm.conf file. A missing file is an error;
// individual malformed values fall back to defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("slurm config: %w", err)
	}
	cfg := Default()
	cfg.parse(string(b))
	cfg.interpret()
	return cfg, nil
}

func (c *Config) parse(content string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
			value = value[1 : len(value)-1]
		}
		c.raw[key] = value
	}
}

func (c *Config) interpret() {
	if v, ok := c.raw["PriorityDecayHalfLife"]; ok {
		if mins := parseTimeDuration(v); mins > 0 {
			c.decayHalfLifeMins = mins
		}
	}
	if v, ok := c.raw["PriorityUsageResetPeriod"]; ok {
		if strings.EqualFold(v, "none") {
			c.usageResetPeriod = nil
		} else if mins := parseTimeDuration(v); mins > 0 {
			c.usageResetPeriod = &mins
		}
	}
	if v, ok := c.raw["PriorityWeightQOS"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.qosWeight = n
		}
	}
	if v, ok := c.raw["PriorityWeightFairShare"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.fairshareWeight = n
		}
	}
	if v, ok := c.raw["FairShareDampeningFactor"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.dampening = n
		}
	}
	if v, ok := c.raw["TRESBillingWeights"]; ok {
		if w := parseBillingWeights(v); len(w) > 0 {
			c.billingWeights = w
		}
	}
	if v, ok := c.raw["PriorityFlags"]; ok {
		flags := strings.Split(v, ",")
		c.priorityFlags = c.priorityFlags[:0]
		for _, f := range flags {
			c.priorityFlags = append(c.priorityFlags, strings.TrimSpace(f))
		}
	}
}

// Raw returns the unparsed value for key, if present.
func (c *Config) Raw(key string) (string, bool) {
	v, ok := c.raw[key]
	return v, ok
}

// DecayHalfLifeDays returns PriorityDecayHalfLife in days.
func (c *Config) DecayHalfLifeDays() float64 {
	return float64(c.decayHalfLifeMins) / (24 * 60)
}

// TRESBillingWeights returns the configured billing weights.
func (c *Config) TRESBillingWeights() map[model.ResourceKind]float64 {
	return c.billingWeights
}

// QOSWeight returns PriorityWeightQOS.
func (c *Config) QOSWeight() int { return c.qosWeight }

// FairshareWeight returns PriorityWeightFairShare.
func (c *Config) FairshareWeight() int { return c.fairshareWeight }

// DampeningFactor returns FairShareDampeningFactor.
func (c *Config) DampeningFactor() int { return c.dampening }

// ManualUsageReset reports whether usage resets only by operator action
// (PriorityUsageResetPeriod absent or NONE).
func (c *Config) ManualUsageReset() bool { return c.usageResetPeriod == nil }

// HasPriorityFlag reports whether the given PriorityFlags entry is set.
func (c *Config) HasPriorityFlag(flag string) bool {
	for _, f := range c.priorityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Validate returns advisory warnings about suspicious values. Warnings
// never prevent the config from being used.
func (c *Config) Validate() []string {
	var warnings []string
	hl := c.DecayHalfLifeDays()
	if hl < 1 {
		warnings = append(warnings, fmt.Sprintf("very short decay half-life: %.1f days", hl))
	} else if hl > 365 {
		warnings = append(warnings, fmt.Sprintf("very long decay half-life: %.1f days", hl))
	}
	if len(c.billingWeights) == 0 {
		warnings = append(warnings, "no TRES billing weights configured")
	}
	for kind, w := range c.billingWeights {
		if w <= 0 {
			warnings = append(warnings, fmt.Sprintf("invalid %s weight: %g", kind, w))
		} else if w > 1 {
			warnings = append(warnings, fmt.Sprintf("unusually high %s weight: %g", kind, w))
		}
	}
	if c.qosWeight <= c.fairshareWeight {
		warnings = append(warnings, fmt.Sprintf(
			"QoS weight (%d) should typically be higher than fairshare weight (%d)",
			c.qosWeight, c.fairshareWeight))
	}
	return warnings
}

var timespecRe = regexp.MustCompile(`^[\d:-]+$`)

// parseTimeDuration converts a Slurm time spec to minutes, mirroring
// Slurm's time_str2mins: special values map to Infinite, unparseable input
// to NoVal, and positive values round up to the next whole minute.
func parseTimeDuration(value string) int {
	switch strings.ToLower(value) {
	case "none", "infinite", "infinity", "unlimited":
		return Infinite
	}
	return timeStr2Mins(value)
}

func timeStr2Mins(s string) int {
	seconds := timeStr2Secs(s)
	if seconds != Infinite && seconds != NoVal {
		seconds = ((seconds + 59) / 60) * 60
	}
	if seconds > 0 {
		return seconds / 60
	}
	return seconds
}

// timeStr2Secs parses "[days-]hours[:minutes[:seconds]]" or
// "minutes[:seconds]" forms, matching Slurm's time_str2secs.
func timeStr2Secs(s string) int {
	if s == "" {
		return NoVal
	}
	switch strings.ToUpper(s) {
	case "-1", "INFINITE", "UNLIMITED":
		return Infinite
	}
	if !timespecRe.MatchString(s) {
		return NoVal
	}

	atoi := func(p string) int {
		n, _ := strconv.Atoi(p)
		return n
	}

	var d, h, m, sec int
	if days, rest, ok := strings.Cut(s, "-"); ok {
		d = atoi(days)
		if rest == "" {
			rest = "0:0:0"
		}
		parts := strings.Split(rest, ":")
		if len(parts) >= 1 {
			h = atoi(parts[0])
		}
		if len(parts) >= 2 {
			m = atoi(parts[1])
		}
		if len(parts) >= 3 {
			sec = atoi(parts[2])
		}
		return d*86400 + h*3600 + m*60 + sec
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 3:
		return atoi(parts[0])*3600 + atoi(parts[1])*60 + atoi(parts[2])
	case 2:
		return atoi(parts[0])*60 + atoi(parts[1])
	default:
		return atoi(parts[0]) * 60
	}
}

// parseBillingWeights parses "CPU=0.015625,Mem=0.001953125G,GRES/gpu=0.25".
// A Mem weight may carry a unit suffix, which is ignored.
func parseBillingWeights(value string) map[model.ResourceKind]float64 {
	weights := make(map[model.ResourceKind]float64)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		kind, weightStr, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		kind = strings.TrimSpace(kind)
		weightStr = strings.TrimSpace(weightStr)
		if kind == string(model.ResourceMem) && strings.HasSuffix(weightStr, "G") {
			weightStr = strings.TrimSuffix(weightStr, "G")
		}
		w, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			continue
		}
		weights[model.ResourceKind(kind)] = w
	}
	return weights
}
