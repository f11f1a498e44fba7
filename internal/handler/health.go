package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmaster-monitor/internal/model"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	Database     Pinger
	ContentRoot  string
	CronDisabled bool
	Logger       *zap.Logger
	Now          func() time.Time
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	checks := model.HealthChecks{
		Database:   h.database(ctx),
		Filesystem: h.filesystem(),
		Cron:       !h.CronDisabled,
	}

	report := model.HealthReport{
		Status:    "ok",
		Timestamp: h.now().Format(time.RFC3339),
		Checks:    checks,
	}
	if !checks.Database || !checks.Filesystem {
		report.Status = "error"
	}
	c.JSON(http.StatusOK, report)
}

func (h *HealthHandler) database(ctx context.Context) bool {
	if h.Database == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Database.Ping(ctx); err != nil {
		h.log().Warn("health database check failed", zap.Error(err))
		return false
	}
	return true
}

// filesystem probes write access by creating and removing a temp file.
func (h *HealthHandler) filesystem() bool {
	f, err := os.CreateTemp(h.ContentRoot, ".wm-health-*")
	if err != nil {
		h.log().Warn("health filesystem check failed", zap.Error(err))
		return false
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name) == nil
}

func (h *HealthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *HealthHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
