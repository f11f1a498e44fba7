package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmaster-monitor/internal/collect"
	"webmaster-monitor/internal/middleware"
	"webmaster-monitor/internal/model"
	"webmaster-monitor/internal/status"
)

type Assembler interface {
	Assemble(ctx context.Context, scope status.Scope) (model.Envelope, error)
}

type StatusHandler struct {
	Aggregator Assembler
	Logger     *zap.Logger
}

func (h *StatusHandler) Full(c *gin.Context) { h.serve(c, status.Full) }
func (h *StatusHandler) Server(c *gin.Context) { h.serve(c, status.ServerOnly) }
func (h *StatusHandler) Platform(c *gin.Context) { h.serve(c, status.PlatformOnly) }

func (h *StatusHandler) serve(c *gin.Context, scope status.Scope) {
	env, err := h.Aggregator.Assemble(c.Request.Context(), scope)
	if err != nil {
		code := "status_failed"
		if errors.Is(err, collect.ErrUnavailable) {
			code = "host_unavailable"
		}
		if h.Logger != nil {
			h.Logger.Error("assemble status", zap.String("scope", scope.String()), zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody(code, err.Error(), http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, env)
}
