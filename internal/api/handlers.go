package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
	"github.com/jonesrussell/north-cloud/monitor/internal/monitor"
)

const (
	defaultListLimit     = 50
	maxListLimit         = 500
	defaultFailureWindow = 24 * time.Hour
)

// triggerRun executes one monitor pass and returns its summary.
func (r *Router) triggerRun(c *gin.Context) {
	summary, err := r.runner.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, monitor.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "a monitor run is already in progress",
			})
			return
		}

		r.logger.Error("monitor run failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "monitor run failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues_detected": summary.IssuesDetected,
		"issues_created":  summary.IssuesCreated,
		"issues_fixed":    summary.IssuesFixed,
		"issues_failed":   summary.IssuesFailed,
		"issues_skipped":  summary.IssuesSkipped,
		"attempts":        summary.Attempts,
	})
}

// listIssues returns ledger rows filtered by status.
func (r *Router) listIssues(c *gin.Context) {
	status := domain.IssueStatus(c.DefaultQuery("status", string(domain.IssueStatusOpen)))
	switch status {
	case domain.IssueStatusOpen, domain.IssueStatusRetrying,
		domain.IssueStatusResolved, domain.IssueStatusNeedsManual:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid status filter",
		})
		return
	}

	limit := parseLimit(c, defaultListLimit)

	issues, err := r.issues.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		r.logger.Error("failed to list issues", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list issues",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues": issues,
		"count":  len(issues),
	})
}

// getIssue returns one issue by id.
func (r *Router) getIssue(c *gin.Context) {
	id, ok := parseIssueID(c)
	if !ok {
		return
	}

	issue, err := r.issues.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
			return
		}
		r.logger.Error("failed to get issue", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get issue"})
		return
	}

	c.JSON(http.StatusOK, issue)
}

// reopenIssue resets a needs_manual issue back to open; operator override
// outside the automatic flow.
func (r *Router) reopenIssue(c *gin.Context) {
	id, ok := parseIssueID(c)
	if !ok {
		return
	}

	var req struct {
		ResetRetries bool `json:"reset_retries"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	err := r.issues.ReopenManual(c.Request.Context(), id, req.ResetRetries)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "issue not found or not awaiting manual review",
			})
			return
		}
		r.logger.Error("failed to reopen issue", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reopen issue"})
		return
	}

	r.logger.Info("issue reopened",
		logger.String("issue_id", id),
		logger.Bool("reset_retries", req.ResetRetries),
	)
	c.JSON(http.StatusOK, gin.H{
		"id":            id,
		"status":        domain.IssueStatusOpen,
		"reset_retries": req.ResetRetries,
	})
}

// getIssueStats returns ledger counts by status.
func (r *Router) getIssueStats(c *gin.Context) {
	stats, err := r.issues.GetStats(c.Request.Context())
	if err != nil {
		r.logger.Error("failed to get issue stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get issue stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// recentRuns returns recent execution records.
func (r *Router) recentRuns(c *gin.Context) {
	limit := parseLimit(c, defaultListLimit)

	runs, err := r.runs.Recent(c.Request.Context(), monitor.JobName, limit)
	if err != nil {
		r.logger.Error("failed to list recent runs", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recent runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// recentFailures returns failed runs within the requested window.
func (r *Router) recentFailures(c *gin.Context) {
	window := defaultFailureWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window, expected a duration like 24h"})
			return
		}
		window = parsed
	}

	runs, err := r.runs.RecentFailures(c.Request.Context(), time.Now().Add(-window))
	if err != nil {
		r.logger.Error("failed to list failed runs", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list failed runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"count":  len(runs),
		"window": window.String(),
	})
}

// parseIssueID validates the :id path parameter.
func parseIssueID(c *gin.Context) (string, bool) {
	idParam := c.Param("id")
	if _, err := uuid.Parse(idParam); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid issue ID format",
		})
		return "", false
	}
	return idParam, true
}

// parseLimit reads the limit query parameter with bounds.
func parseLimit(c *gin.Context, fallback int) int {
	limitParam := c.DefaultQuery("limit", strconv.Itoa(fallback))
	limit, err := strconv.Atoi(limitParam)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
