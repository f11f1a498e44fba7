package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/messages"
	"webmaster-monitor/internal/middleware"
)

type DetailsSource interface {
	Details(ctx context.Context, slug string) (*host.Details, error)
}

// DetailsHandler serves the package information shown in an update's
// details view.
type DetailsHandler struct {
	Catalog DetailsSource
	Locale  string
	Logger  *zap.Logger
}

func (h *DetailsHandler) Get(c *gin.Context) {
	slug := c.Param("slug")
	details, err := h.Catalog.Details(c.Request.Context(), slug)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("details lookup failed", zap.String("slug", slug), zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("details_failed", err.Error(), http.StatusInternalServerError))
		return
	}
	if details == nil {
		c.JSON(http.StatusNotFound, middleware.ErrorBody(messages.DetailsNotFound, messages.Get(h.Locale, messages.DetailsNotFound), http.StatusNotFound))
		return
	}
	c.JSON(http.StatusOK, details)
}
