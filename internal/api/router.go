package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valeevte/valora/internal/metrics"
)

type RouterConfig struct {
	// Live serves the websocket feed at /ws when set.
	Live http.Handler
	// WebDir holds the static monitoring page; empty disables it.
	WebDir string
}

func NewRouter(h *Handler, m *metrics.Metrics, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(), m.GinMiddleware())

	h.RegisterRoutes(r.Group("/api"))
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if cfg.Live != nil {
		r.GET("/ws", gin.WrapH(cfg.Live))
	}
	if cfg.WebDir != "" {
		r.Static("/static", cfg.WebDir)
		r.StaticFile("/", cfg.WebDir+"/index.html")
	}
	return r
}
