package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cardamage/internal/cache"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Storage     string `json:"storage"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Database:    h.probe(ctx, "database", h.db),
		Cache:       h.probe(ctx, "cache", h.cache),
		Storage:     h.probe(ctx, "storage", h.store),
		Environment: h.cfg.Environment,
	}

	code := http.StatusOK
	if resp.Database == "error" {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	} else if resp.Cache == "error" || resp.Storage == "error" {
		resp.Status = "degraded"
	}

	c.JSON(code, resp)
}

func (h HandlerSet) probe(ctx context.Context, name string, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		if errors.Is(err, cache.ErrDisabled) {
			return "disabled"
		}
		h.log.Error().Err(err).Str("component", name).Msg("health ping failed")
		return "error"
	}
	return "ok"
}
