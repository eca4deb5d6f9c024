package timectl

import (
	"github.com/gin-gonic/gin"

	"slurmemu/internal/pkg/clock"
)

// Router mounts the virtual clock endpoints.
type Router struct {
	Clock *clock.Clock
}

func (rt Router) Register(r *gin.Engine) {
	v1 := r.Group("/api/v1/slurm/time")
	{
		v1.GET("", rt.handleStatus)
		v1.PUT("", rt.handleSet)
		v1.POST("/advance", rt.handleAdvance)
	}
}
