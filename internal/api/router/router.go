package router

import (
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/notify-engine/internal/api/handlers/campaign"
	"github.com/aliskhannn/notify-engine/internal/api/handlers/notification"
	"github.com/aliskhannn/notify-engine/internal/api/handlers/webhook"
	"github.com/aliskhannn/notify-engine/internal/api/middlewares"
	"github.com/aliskhannn/notify-engine/internal/metrics"
)

func New(notifHandler *notification.Handler, campaignHandler *campaign.Handler, webhookHandler *webhook.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())
	e.Use(metrics.Middleware())

	e.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := e.Group("/api")

	notify := api.Group("/notify")
	notify.POST("/", notifHandler.Create)
	notify.GET("/", notifHandler.List)
	notify.GET("/:id", notifHandler.GetStatus)
	notify.DELETE("/:id", notifHandler.Cancel)

	campaigns := api.Group("/campaigns")
	campaigns.POST("/", campaignHandler.Create)
	campaigns.GET("/:id", campaignHandler.Get)

	api.POST("/webhooks/:provider", webhookHandler.Receive)

	return e
}
