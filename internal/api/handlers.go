package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/schedule"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

type handlers struct {
	deps Deps
}

type checkResult struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Message string `json:"message,omitempty"`
}

// health handles GET /health
func (h *handlers) health(c *gin.Context) {
	status := healthStatusHealthy
	checks := make(map[string]checkResult, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		start := time.Now()
		err := check(ctx)
		cancel()

		res := checkResult{Status: healthStatusHealthy, Latency: time.Since(start).String()}
		if err != nil {
			res.Status = healthStatusUnhealthy
			res.Message = err.Error()
			status = healthStatusUnhealthy
		}
		checks[name] = res
	}

	code := http.StatusOK
	if status != healthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": h.deps.Service,
		"version": h.deps.Version,
		"checks":  checks,
	})
}

// queueHealth handles GET /api/v1/queue/health
func (h *handlers) queueHealth(c *gin.Context) {
	health, err := h.deps.Content.GetQueueHealth(c.Request.Context())
	if err != nil {
		handleError(c, err, "get queue health")
		return
	}
	c.JSON(http.StatusOK, health)
}

// submitContent handles POST /api/v1/content
func (h *handlers) submitContent(c *gin.Context) {
	var cand domain.Candidate
	if err := c.ShouldBindJSON(&cand); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.deps.Content.Submit(c.Request.Context(), cand)
	if err != nil {
		handleError(c, err, "submit content")
		return
	}
	if !res.Accepted {
		c.JSON(http.StatusConflict, gin.H{
			"error":      domain.ErrDuplicateContent.Error(),
			"matched_id": res.Duplicate.MatchedID,
			"duplicate":  res.Duplicate,
		})
		return
	}
	c.JSON(http.StatusCreated, res.Item)
}

// approveContent handles POST /api/v1/content/:id/approve
func (h *handlers) approveContent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid content id")
		return
	}
	if approveErr := h.deps.Content.Approve(c.Request.Context(), id); approveErr != nil {
		handleError(c, approveErr, "approve content")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "approved": true})
}

// shouldScan handles GET /api/v1/scan/:platform?calls=n
func (h *handlers) shouldScan(c *gin.Context) {
	platform, err := domain.ParsePlatform(c.Param("platform"))
	if err != nil {
		handleError(c, err, "check scan")
		return
	}
	calls, err := strconv.Atoi(c.DefaultQuery("calls", "1"))
	if err != nil {
		badRequest(c, "calls must be an integer")
		return
	}

	d, err := h.deps.Advisor.ShouldCall(c.Request.Context(), platform, calls)
	if err != nil {
		handleError(c, err, "check scan")
		return
	}
	c.JSON(http.StatusOK, d)
}

// recordUsage handles POST /api/v1/scan/usage
func (h *handlers) recordUsage(c *gin.Context) {
	var rec domain.PlatformUsageRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := h.deps.Advisor.RecordUsage(c.Request.Context(), rec); err != nil {
		handleError(c, err, "record usage")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) parseDay(c *gin.Context) (time.Time, bool) {
	day, err := domain.ParseDay(c.Param("day"), h.deps.Schedule.Location())
	if err != nil {
		handleError(c, err, "parse day")
		return time.Time{}, false
	}
	return day, true
}

// getSchedule handles GET /api/v1/schedule/:day
func (h *handlers) getSchedule(c *gin.Context) {
	day, ok := h.parseDay(c)
	if !ok {
		return
	}
	s, err := h.deps.Schedule.GetOrMaterializeSchedule(c.Request.Context(), day)
	if err != nil {
		handleError(c, err, "get schedule")
		return
	}
	c.JSON(http.StatusOK, s)
}

// assignSlot handles POST /api/v1/schedule/:day/slots/:index/assign
func (h *handlers) assignSlot(c *gin.Context) {
	day, ok := h.parseDay(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "slot index must be an integer")
		return
	}

	res, err := h.deps.Schedule.SelectAndAssignNext(c.Request.Context(), day, index)
	if err != nil {
		handleError(c, err, "assign slot")
		return
	}
	c.JSON(http.StatusOK, res)
}

// recordPosted handles POST /api/v1/schedule/posted
func (h *handlers) recordPosted(c *gin.Context) {
	var ev schedule.PostedEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.deps.Schedule.RecordPosted(c.Request.Context(), ev)
	if err != nil {
		handleError(c, err, "record posted")
		return
	}
	c.JSON(http.StatusOK, res)
}

// diversity handles GET /api/v1/diversity/:day
func (h *handlers) diversity(c *gin.Context) {
	day, ok := h.parseDay(c)
	if !ok {
		return
	}
	rep, err := h.deps.Diversity.GetDiversityMetrics(c.Request.Context(), day)
	if err != nil {
		handleError(c, err, "get diversity metrics")
		return
	}
	c.JSON(http.StatusOK, rep)
}

// runCycle handles POST /api/v1/cycle/run
func (h *handlers) runCycle(c *gin.Context) {
	rep, err := h.deps.Cycle.RunOnce(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{"error": "cycle stopped: " + err.Error(), "report": rep})
		return
	}
	c.JSON(http.StatusOK, rep)
}
