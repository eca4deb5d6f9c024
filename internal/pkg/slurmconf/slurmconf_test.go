package slurmconf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slurmemu/internal/pkg/model"
)

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slurm.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	return path
}

func TestDefaultValues(t *testing.T) {
	c := Default()
	if got := c.DecayHalfLifeDays(); got != DefaultHalfLifeDays {
		t.Errorf("half-life = %v, want %v", got, DefaultHalfLifeDays)
	}
	if c.QOSWeight() != DefaultQOSWeight {
		t.Errorf("qos weight = %d, want %d", c.QOSWeight(), DefaultQOSWeight)
	}
	if c.FairshareWeight() != DefaultFairshareWeight {
		t.Errorf("fairshare weight = %d, want %d", c.FairshareWeight(), DefaultFairshareWeight)
	}
	if c.DampeningFactor() != DefaultDampening {
		t.Errorf("dampening = %d, want %d", c.DampeningFactor(), DefaultDampening)
	}
	if !c.ManualUsageReset() {
		t.Error("expected manual usage reset by default")
	}
	if !c.HasPriorityFlag("NO_NORMAL_ASSOC") {
		t.Error("expected default NO_NORMAL_ASSOC flag")
	}
	weights := c.TRESBillingWeights()
	if weights[model.ResourceCPU] != 0.015625 {
		t.Errorf("cpu weight = %v", weights[model.ResourceCPU])
	}
	if weights[model.ResourceGPU] != 0.25 {
		t.Errorf("gpu weight = %v", weights[model.ResourceGPU])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.conf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadParsesPrioritySubset(t *testing.T) {
	path := writeConf(t, `
# cluster config
ClusterName=emu

PriorityDecayHalfLife=30-0   # thirty days
PriorityUsageResetPeriod=NONE
PriorityWeightQOS=750000
PriorityWeightFairShare=100000
FairShareDampeningFactor=5
PriorityFlags=MAX_TRES,FAIR_TREE
TRESBillingWeights="CPU=0.03125,Mem=0.00390625G,GRES/gpu=0.5"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.DecayHalfLifeDays(); got != 30 {
		t.Errorf("half-life = %v days, want 30", got)
	}
	if !c.ManualUsageReset() {
		t.Error("NONE reset period should report manual reset")
	}
	if c.QOSWeight() != 750000 {
		t.Errorf("qos weight = %d", c.QOSWeight())
	}
	if c.FairshareWeight() != 100000 {
		t.Errorf("fairshare weight = %d", c.FairshareWeight())
	}
	if c.DampeningFactor() != 5 {
		t.Errorf("dampening = %d", c.DampeningFactor())
	}
	if !c.HasPriorityFlag("FAIR_TREE") || c.HasPriorityFlag("NO_NORMAL_ASSOC") {
		t.Error("PriorityFlags not replaced by configured list")
	}

	weights := c.TRESBillingWeights()
	if weights[model.ResourceCPU] != 0.03125 {
		t.Errorf("cpu weight = %v, want 0.03125", weights[model.ResourceCPU])
	}
	// Mem weight carries a G suffix that must be stripped
	if weights[model.ResourceMem] != 0.00390625 {
		t.Errorf("mem weight = %v, want 0.00390625", weights[model.ResourceMem])
	}
	if weights[model.ResourceGPU] != 0.5 {
		t.Errorf("gpu weight = %v, want 0.5", weights[model.ResourceGPU])
	}

	if v, ok := c.Raw("ClusterName"); !ok || v != "emu" {
		t.Errorf("raw ClusterName = %q, ok=%v", v, ok)
	}
}

func TestLoadUsageResetPeriod(t *testing.T) {
	path := writeConf(t, "PriorityUsageResetPeriod=24:00:00\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ManualUsageReset() {
		t.Error("configured reset period should not report manual reset")
	}
}

func TestTimeStr2Mins(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"30", 30},        // bare minutes
		{"30:45", 31},     // minutes:seconds, rounds up
		{"1:00:00", 60},   // hours:minutes:seconds
		{"2:30:00", 150},
		{"1-0", 1440},     // days-hours
		{"1-12", 2160},    // 1.5 days
		{"14-0", 20160},
		{"0-0:30:30", 31}, // rounds up to the next minute
		{"INFINITE", -1},
		{"UNLIMITED", -1},
		{"-1", -1},
		{"", NoVal},
		{"not-a-time", NoVal},
	}
	for _, c := range cases {
		if got := timeStr2Mins(c.in); got != c.want {
			t.Errorf("timeStr2Mins(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseTimeDuration(t *testing.T) {
	if got := parseTimeDuration("none"); got != Infinite {
		t.Errorf("none = %d, want Infinite", got)
	}
	if got := parseTimeDuration("infinity"); got != Infinite {
		t.Errorf("infinity = %d, want Infinite", got)
	}
	if got := parseTimeDuration("15-0"); got != 21600 {
		t.Errorf("15-0 = %d minutes, want 21600", got)
	}
}

func TestValidateWarnings(t *testing.T) {
	c := Default()
	if warnings := c.Validate(); len(warnings) != 0 {
		t.Errorf("default config warned: %v", warnings)
	}

	path := writeConf(t, `
PriorityDecayHalfLife=0-1
PriorityWeightQOS=100
PriorityWeightFairShare=200
TRESBillingWeights="CPU=2.0"
`)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	warnings := loaded.Validate()
	joined := strings.Join(warnings, "; ")
	if !strings.Contains(joined, "short decay half-life") {
		t.Errorf("missing short half-life warning: %v", warnings)
	}
	if !strings.Contains(joined, "CPU weight") {
		t.Errorf("missing high weight warning: %v", warnings)
	}
	if !strings.Contains(joined, "fairshare weight") {
		t.Errorf("missing weight-ordering warning: %v", warnings)
	}
}
