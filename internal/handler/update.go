package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/messages"
	"webmaster-monitor/internal/middleware"
	"webmaster-monitor/internal/model"
	"webmaster-monitor/internal/update"
)

type Applier interface {
	Apply(ctx context.Context, kind host.Kind, identifier string) (model.UpdateResult, *update.Error)
}

type UpdateHandler struct {
	Coordinator Applier
	Locale      string
}

type applyUpdateBody struct {
	Type string `json:"type" form:"type" binding:"required"`
	Slug string `json:"slug" form:"slug" binding:"required"`
}

func (h *UpdateHandler) Apply(c *gin.Context) {
	var body applyUpdateBody
	if err := c.ShouldBind(&body); err != nil {
		c.JSON(http.StatusBadRequest, middleware.ErrorBody(messages.InvalidRequest, messages.Get(h.Locale, messages.InvalidRequest), http.StatusBadRequest))
		return
	}
	kind, ok := host.ParseKind(body.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, middleware.ErrorBody(messages.InvalidType, messages.Get(h.Locale, messages.InvalidType), http.StatusBadRequest))
		return
	}

	result, uerr := h.Coordinator.Apply(c.Request.Context(), kind, body.Slug)
	if uerr == nil {
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     messages.Get(h.Locale, messages.UpdateSucceeded, update.Title(kind)),
			"type":        string(kind),
			"slug":        body.Slug,
			"new_version": result.NewVersion,
		})
		return
	}

	status := http.StatusInternalServerError
	if uerr.Kind == update.NoUpdate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success": false,
		"code":    uerr.Kind.String(),
		"error":   uerr.Message,
		"type":    string(kind),
		"slug":    body.Slug,
	})
}
