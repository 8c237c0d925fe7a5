package api

import (
	authHandler "leadgen-server/internal/auth/handler"
	campaignHandler "leadgen-server/internal/campaigns/handler"
	"leadgen-server/internal/metrics"
	"net/http"

	"github.com/gin-gonic/gin"
)

type API struct {
	router          *gin.RouterGroup
	authHandler     authHandler.Handler
	campaignHandler campaignHandler.Handler
	metrics         *metrics.Metrics
}

func New(router *gin.RouterGroup, authHandler authHandler.Handler, campaignHandler campaignHandler.Handler,
	metrics *metrics.Metrics) API {
	return API{
		router:          router,
		authHandler:     authHandler,
		campaignHandler: campaignHandler,
		metrics:         metrics,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	a.router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	apiGroup := a.router.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/login/email", a.authHandler.HandleEmailLogin)
		authGroup.POST("/signup/email", a.authHandler.HandleEmailSignup)
		authGroup.GET("/google/callback", a.authHandler.HandleGoogleOauthCallback)
	}
	protectedGroup := apiGroup.Group("/protected", a.authHandler.HandleJWTMiddleware)
	{
		protectedGroup.POST("/campaigns/runs", a.campaignHandler.HandleStartRun)
		protectedGroup.GET("/campaigns/runs", a.campaignHandler.HandleListRuns)
		protectedGroup.GET("/campaigns/runs/:runId/progress", a.campaignHandler.HandleGetProgress)
		protectedGroup.GET("/campaigns/runs/:runId/result", a.campaignHandler.HandleGetResult)
		protectedGroup.POST("/campaigns/runs/:runId/cancel", a.campaignHandler.HandleCancelRun)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
