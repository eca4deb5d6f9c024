package timectl

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"slurmemu/internal/pkg/clock"
	"slurmemu/internal/pkg/common/response"
)

// AdvanceRequest moves the virtual clock by a relative offset. Quarters
// normalize to months before calendar arithmetic applies.
type AdvanceRequest struct {
	Days     int `json:"days"`
	Months   int `json:"months"`
	Quarters int `json:"quarters"`
}

// SetRequest jumps the virtual clock to an absolute instant.
type SetRequest struct {
	Time time.Time `json:"time" binding:"required"`
}

// @Summary Emulator time status
// @Description Current virtual instant, quarter label, and quarter bounds.
// @Tags time
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/slurm/time [get]
func (rt Router) handleStatus(c *gin.Context) {
	now := rt.Clock.Now()
	period := rt.Clock.Period()
	start, end, err := clock.PeriodBounds(period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Response{Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.Response{Results: gin.H{
		"current_time": now,
		"period":       period,
		"period_start": start,
		"period_end":   end,
	}})
}

// @Summary Advance the virtual clock
// @Tags time
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/time/advance [post]
func (rt Router) handleAdvance(c *gin.Context) {
	var req AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	now := rt.Clock.Advance(req.Days, req.Months, req.Quarters)
	c.JSON(http.StatusOK, response.Response{Results: gin.H{
		"current_time": now,
		"period":       clock.Quarter(now),
	}})
}

// @Summary Set the virtual clock
// @Tags time
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/time [put]
func (rt Router) handleSet(c *gin.Context) {
	var req SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	now := rt.Clock.Set(req.Time)
	c.JSON(http.StatusOK, response.Response{Results: gin.H{
		"current_time": now,
		"period":       clock.Quarter(now),
	}})
}
