// Package api serves the admin HTTP API.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/conservation"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/cycle"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/diversity"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/queue"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/schedule"
)

const healthCheckTimeout = 2 * time.Second

type ContentService interface {
	Submit(ctx context.Context, c domain.Candidate) (queue.SubmitResult, error)
	Approve(ctx context.Context, id uuid.UUID) error
	GetQueueHealth(ctx context.Context) (queue.Health, error)
}

type ScanAdvisor interface {
	ShouldCall(ctx context.Context, platform domain.Platform, n int) (conservation.Decision, error)
	RecordUsage(ctx context.Context, rec domain.PlatformUsageRecord) error
}

type ScheduleService interface {
	Location() *time.Location
	GetOrMaterializeSchedule(ctx context.Context, day time.Time) (schedule.Schedule, error)
	SelectAndAssignNext(ctx context.Context, day time.Time, index int) (schedule.AssignResult, error)
	RecordPosted(ctx context.Context, ev schedule.PostedEvent) (schedule.MatchResult, error)
}

type DiversityService interface {
	GetDiversityMetrics(ctx context.Context, day time.Time) (diversity.Report, error)
}

type CycleRunner interface {
	RunOnce(ctx context.Context) (cycle.Report, error)
}

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the services behind the routes. Gatherer and Cycle may be nil.
type Deps struct {
	Service   string
	Version   string
	Debug     bool
	Content   ContentService
	Advisor   ScanAdvisor
	Schedule  ScheduleService
	Diversity DiversityService
	Cycle     CycleRunner
	Gatherer  prometheus.Gatherer
	Checks    map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps Deps, log logger.Logger) *gin.Engine {
	if deps.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(recoveryMiddleware(log))
	router.Use(requestIDMiddleware(log))
	router.Use(loggerMiddleware())

	h := &handlers{deps: deps}
	router.GET("/health", h.health)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")

	v1.GET("/queue/health", h.queueHealth)

	content := v1.Group("/content")
	content.POST("", h.submitContent)
	content.POST("/:id/approve", h.approveContent)

	scan := v1.Group("/scan")
	scan.POST("/usage", h.recordUsage) // before :platform
	scan.GET("/:platform", h.shouldScan)

	sched := v1.Group("/schedule")
	sched.POST("/posted", h.recordPosted)
	sched.GET("/:day", h.getSchedule)
	sched.POST("/:day/slots/:index/assign", h.assignSlot)

	v1.GET("/diversity/:day", h.diversity)

	if deps.Cycle != nil {
		v1.POST("/cycle/run", h.runCycle)
	}

	return router
}
