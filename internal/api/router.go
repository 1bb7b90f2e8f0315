package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/monitor/internal/database"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
	"github.com/jonesrussell/north-cloud/monitor/internal/monitor"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"
)

// RunTrigger starts one monitor run.
type RunTrigger interface {
	Run(ctx context.Context) (*domain.RunSummary, error)
}

// IssueReader is the ledger surface exposed over HTTP.
type IssueReader interface {
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	ListByStatus(ctx context.Context, status domain.IssueStatus, limit int) ([]domain.Issue, error)
	ReopenManual(ctx context.Context, id string, resetRetries bool) error
	GetStats(ctx context.Context) (*database.IssueStats, error)
}

// RunReader exposes execution history.
type RunReader interface {
	Recent(ctx context.Context, jobName string, limit int) ([]domain.ExecutionRecord, error)
	RecentFailures(ctx context.Context, since time.Time) ([]domain.ExecutionRecord, error)
	LastCompleted(ctx context.Context, jobName string) (*domain.ExecutionRecord, error)
}

// Pinger reports store connectivity for health checks.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Router holds the API dependencies
type Router struct {
	runner      RunTrigger
	issues      IssueReader
	runs        RunReader
	db          Pinger
	redisClient redis.UniversalClient
	gatherer    prometheus.Gatherer
	corsOrigins []string
	authToken   string
	debug       bool
	logger      logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	runner RunTrigger,
	issues IssueReader,
	runs RunReader,
	db Pinger,
	redisClient redis.UniversalClient,
	gatherer prometheus.Gatherer,
	corsOrigins []string,
	authToken string,
	debug bool,
	log logger.Logger,
) *Router {
	return &Router{
		runner:      runner,
		issues:      issues,
		runs:        runs,
		db:          db,
		redisClient: redisClient,
		gatherer:    gatherer,
		corsOrigins: corsOrigins,
		authToken:   authToken,
		debug:       debug,
		logger:      log,
	}
}

// SetupRoutes builds the gin engine with middleware and all routes.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.debug {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(r.corsOrigins))

	// Public, no auth.
	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(r.authToken))

	v1.POST("/monitor/run", r.triggerRun)

	issues := v1.Group("/issues")
	issues.GET("", r.listIssues)
	issues.GET("/stats", r.getIssueStats) // More specific route before :id
	issues.GET("/:id", r.getIssue)
	issues.POST("/:id/reopen", r.reopenIssue)

	v1.GET("/runs/recent", r.recentRuns)
	v1.GET("/runs/failures", r.recentFailures)

	return router
}

// healthCheck reports the service status and store connectivity.
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "monitor",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := true
	if err := r.db.PingContext(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{"connected": dbConnected}

	// Redis is optional; only a configured client counts against health.
	if r.redisClient != nil {
		redisConnected := r.redisClient.Ping(ctx).Err() == nil
		health["redis"] = gin.H{"connected": redisConnected}
		if !redisConnected && health["status"] == healthStatusHealthy {
			health["status"] = healthStatusDegraded
		}
	}

	if dbConnected {
		if last, err := r.runs.LastCompleted(ctx, monitor.JobName); err == nil && last != nil {
			health["last_run"] = gin.H{
				"completed_at": last.CompletedAt,
				"success":      last.Success,
			}
		}
	}

	c.JSON(http.StatusOK, health)
}
