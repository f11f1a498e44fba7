package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/middleware"
	"webmaster-monitor/internal/selfupdate"
)

type VersionChecker interface {
	Check(ctx context.Context, force bool) (*selfupdate.RemoteVersionInfo, error)
	ForceCheck(ctx context.Context) (*host.UpdateSet, error)
}

// SelfUpdateHandler exposes the agent's own release check.
type SelfUpdateHandler struct {
	Poller         VersionChecker
	CurrentVersion string
	Basename       string
}

func (h *SelfUpdateHandler) Info(c *gin.Context) {
	info, err := h.Poller.Check(c.Request.Context(), false)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_version": h.CurrentVersion, "remote": info})
}

// Check runs a forced check cycle, bypassing both the agent and host caches.
func (h *SelfUpdateHandler) Check(c *gin.Context) {
	set, err := h.Poller.ForceCheck(c.Request.Context())
	if err != nil {
		h.unavailable(c, err)
		return
	}
	resp := gin.H{"current_version": h.CurrentVersion, "update_available": false, "new_version": nil}
	if offer, ok := set.Response[h.Basename]; ok {
		resp["update_available"] = true
		resp["new_version"] = offer.NewVersion
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SelfUpdateHandler) unavailable(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "check_failed"
	if errors.Is(err, selfupdate.ErrRemoteUnavailable) {
		status, code = http.StatusBadGateway, "remote_unavailable"
	}
	c.JSON(status, middleware.ErrorBody(code, err.Error(), status))
}
