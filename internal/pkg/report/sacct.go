// Package report renders accounting data in sacct's pipe-delimited output
// format. Rendering only: parsing sacct command syntax is out of scope.
package report

import (
	"fmt"
	"strings"

	"slurmemu/internal/pkg/model"
)

// DefaultFields are the columns rendered when the caller does not pick any.
var DefaultFields = []string{
	"JobID", "JobName", "Account", "User", "State", "AllocTRES", "Elapsed", "NodeList",
}

// RenderJobs formats usage records as sacct job lines, one record per job,
// with a header row. Unknown field names render as empty columns, matching
// sacct's tolerance for bad format lists.
func RenderJobs(records model.UsageRecords, fields []string) string {
	if len(fields) == 0 {
		fields = DefaultFields
	}

	var b strings.Builder
	b.WriteString(strings.Join(fields, "|"))
	for i, r := range records {
		b.WriteByte('\n')
		cols := make([]string, 0, len(fields))
		for _, f := range fields {
			cols = append(cols, fieldValue(r, i, f))
		}
		b.WriteString(strings.Join(cols, "|"))
	}
	return b.String()
}

func fieldValue(r model.UsageRecord, index int, field string) string {
	switch field {
	case "JobID":
		return fmt.Sprintf("job_%d", index+1)
	case "JobName":
		return fmt.Sprintf("emulated_job_%d", index+1)
	case "Account":
		return r.Account
	case "User":
		return r.User
	case "State":
		return model.JobStateCompleted
	case "AllocTRES":
		return allocTRES(r.RawTRES)
	case "Elapsed":
		return elapsed(r.NodeHours)
	case "Timelimit":
		return "UNLIMITED"
	case "NodeList":
		return nodeList(r.NodeHours)
	default:
		return ""
	}
}

// allocTRES renders the raw breakdown in slurm's AllocTRES shape, e.g.
// "billing=12,cpu=768,gres/gpu=48,mem=6144G,node=12".
func allocTRES(tres model.TRES) string {
	parts := make([]string, 0, 5)
	if v, ok := tres[model.ResourceNode]; ok {
		parts = append(parts, fmt.Sprintf("billing=%d", v))
	}
	if v, ok := tres[model.ResourceCPU]; ok {
		parts = append(parts, fmt.Sprintf("cpu=%d", v))
	}
	if v, ok := tres[model.ResourceGPU]; ok {
		parts = append(parts, fmt.Sprintf("gres/gpu=%d", v))
	}
	if v, ok := tres[model.ResourceMem]; ok {
		parts = append(parts, fmt.Sprintf("mem=%dG", v))
	}
	if v, ok := tres[model.ResourceNode]; ok {
		parts = append(parts, fmt.Sprintf("node=%d", v))
	}
	return strings.Join(parts, ",")
}

// elapsed renders node-hours as hh:mm:00 wall time.
func elapsed(nodeHours float64) string {
	hours := int(nodeHours)
	minutes := int((nodeHours - float64(hours)) * 60)
	return fmt.Sprintf("%02d:%02d:00", hours, minutes)
}

// nodeList fakes a contiguous node range sized by the consumption.
func nodeList(nodeHours float64) string {
	count := int(nodeHours)
	if count < 1 {
		count = 1
	}
	return fmt.Sprintf("node[001-%03d]", count)
}
