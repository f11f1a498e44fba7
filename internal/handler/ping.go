package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webmaster-monitor/internal/messages"
	"webmaster-monitor/internal/model"
)

type PingHandler struct {
	AgentVersion string
	SiteURL      string
	Locale       string
}

func (h *PingHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, model.PingResponse{
		Status:        "ok",
		Message:       messages.Get(h.Locale, messages.PingOK),
		PluginVersion: h.AgentVersion,
		Timestamp:     time.Now().Format(time.RFC3339),
		SiteURL:       h.SiteURL,
	})
}
