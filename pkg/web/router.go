package web

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/call"
	"github.com/LingByte/LingBridge/pkg/config"
)

// NewRouter builds the voice API under the configured prefix.
func NewRouter(cfg *config.Config, db *gorm.DB, engine *call.Engine) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	h := NewHandler(cfg, db, engine)

	voice := r.Group(cfg.Server.APIPrefix + "/voice")
	{
		voice.POST("/call", h.StartCall)
		voice.GET("/stream/:short_id", h.Stream)
		voice.POST("/webhook/:provider", h.Webhook)
		voice.GET("/health", h.Health)
		voice.GET("/calls", h.RecentCalls)
	}
	return r
}
