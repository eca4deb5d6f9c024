package accounting

import (
	"github.com/gin-gonic/gin"

	"slurmemu/internal/pkg/limits"
	"slurmemu/internal/pkg/qos"
	"slurmemu/internal/pkg/store"
	"slurmemu/internal/pkg/usage"
)

// Router mounts the accounting endpoints. Dependencies are injected
// explicitly; there is no package-level default instance.
type Router struct {
	Store    *store.Store
	Injector *usage.Injector
	Calc     *limits.Calculator
	QOS      *qos.Manager
	// Options overrides the calculator defaults for the settings,
	// thresholds, and transition endpoints; nil means defaults.
	Options *limits.Options
}

func (rt Router) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1/slurm/accounting")
	{
		v1.GET("/accounts", rt.handleListAccounts)
		v1.POST("/accounts", rt.handleCreateAccount)
		v1.GET("/accounts/:name", rt.handleGetAccount)
		v1.DELETE("/accounts/:name", rt.handleDeleteAccount)
		v1.GET("/users", rt.handleListUsers)
		v1.POST("/usage", rt.handleInjectUsage)
		v1.GET("/usage/records", rt.handleUsageRecords)
		v1.GET("/usage/summary", rt.handleUsageSummary)
		v1.GET("/usage/report", rt.handleUsageReport)
		v1.GET("/limits/settings", rt.handlePeriodicSettings)
		v1.GET("/limits/thresholds", rt.handleCheckThresholds)
		v1.POST("/limits/transition", rt.handlePeriodTransition)
		v1.GET("/qos", rt.handleGetQOS)
		v1.PUT("/qos", rt.handleSetQOS)
		v1.POST("/qos/check", rt.handleCheckQOS)
		v1.POST("/qos/impact", rt.handleQOSImpact)
		v1.GET("/qos/report", rt.handleQOSReport)
	}
}
