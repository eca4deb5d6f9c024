package accounting

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"slurmemu/internal/pkg/clock"
	"slurmemu/internal/pkg/common/response"
	"slurmemu/internal/pkg/model"
	"slurmemu/internal/pkg/qos"
	"slurmemu/internal/pkg/report"
	"slurmemu/internal/pkg/store"
)

// RegisterValidations installs custom binding rules on gin's validator.
// "period" accepts "<year>-Q<n>" labels only.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
			_, _, err := clock.ParsePeriod(fl.Field().String())
			return err == nil
		})
	}
}

// CreateAccountRequest creates an account explicitly (the injector also
// creates them lazily).
type CreateAccountRequest struct {
	Name         string  `json:"name" binding:"required"`
	Description  string  `json:"description"`
	Organization string  `json:"organization"`
	Parent       string  `json:"parent"`
	Allocation   float64 `json:"allocation"`
}

// InjectUsageRequest appends usage. NodeHours is deliberately unvalidated:
// negative values are corrections.
type InjectUsageRequest struct {
	Account   string    `json:"account" binding:"required"`
	User      string    `json:"user" binding:"required"`
	NodeHours float64   `json:"node_hours"`
	At        time.Time `json:"at,omitempty"`
}

// SetQOSRequest sets an account's service level.
type SetQOSRequest struct {
	Account string `json:"account" binding:"required"`
	Level   string `json:"level" binding:"required"`
}

// CheckQOSRequest runs a threshold-driven level update.
type CheckQOSRequest struct {
	Account      string  `json:"account" binding:"required"`
	CurrentUsage float64 `json:"current_usage"`
	QOSThreshold float64 `json:"qos_threshold"`
	GraceLimit   float64 `json:"grace_limit"`
}

// ImpactRequest previews a projected usage figure.
type ImpactRequest struct {
	Account        string  `json:"account" binding:"required"`
	ProjectedUsage float64 `json:"projected_usage"`
	QOSThreshold   float64 `json:"qos_threshold"`
	GraceLimit     float64 `json:"grace_limit"`
}

// TransitionRequest applies a period transition to an account.
type TransitionRequest struct {
	Account string `json:"account" binding:"required"`
}

// recordsQuery filters the usage ledger.
type recordsQuery struct {
	Account string `form:"account"`
	User    string `form:"user"`
	Period  string `form:"period" binding:"omitempty,period"`
}

// @Summary List accounts (paged)
// @Description Lists accounts sorted by name with page/page_size paging.
// @Tags accounting, account
// @Produce json
// @Param page query int false "page number, from 1"
// @Param page_size query int false "page size, 1-1000"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/accounting/accounts [get]
func (rt Router) handleListAccounts(c *gin.Context) {
	var pq model.PagingQuery
	_ = c.ShouldBindQuery(&pq)
	pq.SetDefaults(1, 20, 100)
	if err := pq.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: "invalid paging parameters"})
		return
	}

	accounts := rt.Store.Accounts()
	total := len(accounts)
	lo := pq.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + pq.Limit()
	if hi > total {
		hi = total
	}

	prevURL, nextURL := response.BuildPageLinks(c.Request.URL, pq.Page, pq.PageSize, total)
	c.JSON(http.StatusOK, response.Response{
		Count:    &total,
		Previous: prevURL,
		Next:     nextURL,
		Results:  accounts[lo:hi],
	})
}

// @Summary Get one account
// @Tags accounting, account
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/slurm/accounting/accounts/{name} [get]
func (rt Router) handleGetAccount(c *gin.Context) {
	acct, ok := rt.Store.Account(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, response.Response{Detail: "account not found"})
		return
	}
	c.JSON(http.StatusOK, response.Response{Results: acct})
}

// @Summary Create an account
// @Tags accounting, account
// @Accept json
// @Produce json
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/accounting/accounts [post]
func (rt Router) handleCreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	rt.Store.AddAccount(req.Name, req.Description, req.Organization, req.Parent)
	if req.Allocation > 0 {
		_ = rt.Store.SetAllocation(req.Name, req.Allocation)
	}
	acct, _ := rt.Store.Account(req.Name)
	c.JSON(http.StatusCreated, response.Response{Results: acct})
}

// @Summary Delete an account with full cleanup
// @Description Removes the account and every usage record, association, and job referencing it.
// @Tags accounting, account
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/slurm/accounting/accounts/{name} [delete]
func (rt Router) handleDeleteAccount(c *gin.Context) {
	name := c.Param("name")
	if _, ok := rt.Store.Account(name); !ok {
		c.JSON(http.StatusNotFound, response.Response{Detail: "account not found"})
		return
	}
	rt.Store.Purge(name)
	rt.Store.SaveState()
	c.JSON(http.StatusOK, response.Response{Results: gin.H{"deleted": name}})
}

// @Summary List users (paged)
// @Tags accounting, user
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/accounting/users [get]
func (rt Router) handleListUsers(c *gin.Context) {
	var pq model.PagingQuery
	_ = c.ShouldBindQuery(&pq)
	pq.SetDefaults(1, 20, 100)
	if err := pq.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: "invalid paging parameters"})
		return
	}

	users := rt.Store.Users()
	total := len(users)
	lo := pq.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + pq.Limit()
	if hi > total {
		hi = total
	}

	prevURL, nextURL := response.BuildPageLinks(c.Request.URL, pq.Page, pq.PageSize, total)
	c.JSON(http.StatusOK, response.Response{
		Count:    &total,
		Previous: prevURL,
		Next:     nextURL,
		Results:  users[lo:hi],
	})
}

// @Summary Inject usage
// @Description Appends a usage record; missing account, user, or association are created on the fly.
// @Tags accounting, usage
// @Accept json
// @Produce json
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/accounting/usage [post]
func (rt Router) handleInjectUsage(c *gin.Context) {
	var req InjectUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	record := rt.Injector.Inject(req.Account, req.User, req.NodeHours, req.At)
	c.JSON(http.StatusCreated, response.Response{Results: record})
}

// @Summary Query usage records
// @Tags accounting, usage
// @Produce json
// @Param account query string false "account filter"
// @Param user query string false "user filter"
// @Param period query string false "period label filter, e.g. 2024-Q2"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/accounting/usage/records [get]
func (rt Router) handleUsageRecords(c *gin.Context) {
	var q recordsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	records := rt.Store.UsageRecords(store.Filter{Account: q.Account, User: q.User, Period: q.Period})
	total := len(records)
	c.JSON(http.StatusOK, response.Response{Count: &total, Results: records})
}

// @Summary Usage summary for an account
// @Tags accounting, usage
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/slurm/accounting/usage/summary [get]
func (rt Router) handleUsageSummary(c *gin.Context) {
	account := c.Query("account")
	if _, ok := rt.Store.Account(account); !ok {
		c.JSON(http.StatusNotFound, response.Response{Detail: "account not found"})
		return
	}
	c.JSON(http.StatusOK, response.Response{Results: rt.Injector.Summary(account)})
}

// @Summary Render usage as sacct output
// @Tags accounting, usage
// @Produce plain
// @Param account query string false "account filter"
// @Param period query string false "period label filter"
// @Param format query string false "comma-separated sacct fields"
// @Success 200 {string} string
// @Router /api/v1/slurm/accounting/usage/report [get]
func (rt Router) handleUsageReport(c *gin.Context) {
	var q recordsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	records := rt.Store.UsageRecords(store.Filter{Account: q.Account, User: q.User, Period: q.Period})
	var fields []string
	if f := c.Query("format"); f != "" {
		fields = strings.Split(f, ",")
	}
	c.String(http.StatusOK, report.RenderJobs(records, fields))
}

// @Summary Periodic settings for an account
// @Description Read-only settings calculation including the carryover breakdown.
// @Tags accounting, limits
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/slurm/accounting/limits/settings [get]
func (rt Router) handlePeriodicSettings(c *gin.Context) {
	settings, err := rt.Calc.PeriodicSettings(c.Query("account"), rt.Options)
	if err != nil {
		rt.replyCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Response{Results: settings})
}

// @Summary Check usage thresholds
// @Tags accounting, limits
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/slurm/accounting/limits/thresholds [get]
func (rt Router) handleCheckThresholds(c *gin.Context) {
	status, err := rt.Calc.CheckUsageThresholds(c.Query("account"), nil)
	if err != nil {
		rt.replyCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Response{Results: status})
}

// @Summary Apply a period transition
// @Description Writes the calculated settings back onto the account and resets its QoS.
// @Tags accounting, limits
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/slurm/accounting/limits/transition [post]
func (rt Router) handlePeriodTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	settings, err := rt.Calc.ApplyPeriodTransition(req.Account, rt.Options)
	if err != nil {
		rt.replyCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Response{Results: settings})
}

// @Summary Get an account's QoS level
// @Tags accounting, qos
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/slurm/accounting/qos [get]
func (rt Router) handleGetQOS(c *gin.Context) {
	account := c.Query("account")
	level := rt.QOS.AccountLevel(account)
	info, _ := qos.Info(level)
	c.JSON(http.StatusOK, response.Response{Results: gin.H{
		"account":  account,
		"qos":      level,
		"qos_info": info,
	}})
}

// @Summary Set an account's QoS level
// @Tags accounting, qos
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/slurm/accounting/qos [put]
func (rt Router) handleSetQOS(c *gin.Context) {
	var req SetQOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	level, err := model.ParseQOSLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	if err := rt.QOS.Set(req.Account, level); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, response.Response{Detail: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.Response{Results: gin.H{"account": req.Account, "qos": level}})
}

// @Summary Check usage and update QoS
// @Tags accounting, qos
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/accounting/qos/check [post]
func (rt Router) handleCheckQOS(c *gin.Context) {
	var req CheckQOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	result := rt.QOS.CheckAndUpdate(req.Account, req.CurrentUsage, req.QOSThreshold, req.GraceLimit)
	c.JSON(http.StatusOK, response.Response{Results: result})
}

// @Summary Simulate QoS impact of projected usage
// @Tags accounting, qos
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/slurm/accounting/qos/impact [post]
func (rt Router) handleQOSImpact(c *gin.Context) {
	var req ImpactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
		return
	}
	impact := rt.QOS.SimulateImpact(req.Account, req.ProjectedUsage, req.QOSThreshold, req.GraceLimit)
	c.JSON(http.StatusOK, response.Response{Results: impact})
}

// @Summary QoS report over accounts
// @Tags accounting, qos
// @Produce json
// @Param accounts query string false "comma-separated account names; empty means all"
// @Success 200 {object} response.Response
// @Router /api/v1/slurm/accounting/qos/report [get]
func (rt Router) handleQOSReport(c *gin.Context) {
	var names []string
	if raw := c.Query("accounts"); raw != "" {
		names = strings.Split(raw, ",")
	} else {
		for _, acct := range rt.Store.Accounts() {
			names = append(names, acct.Name)
		}
	}
	c.JSON(http.StatusOK, response.Response{Results: rt.QOS.GenerateReport(names)})
}

func (rt Router) replyCalcError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, response.Response{Detail: err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, response.Response{Detail: err.Error()})
}
