package http

import (
	"github.com/gin-gonic/gin"

	appsvc "vnnews-clustering/internal/app"
	"vnnews-clustering/internal/bootstrap"
	"vnnews-clustering/internal/config"
	"vnnews-clustering/internal/transport/http/handler"
	"vnnews-clustering/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/readyz", healthHandler.Ready)

	clusterHandler := handler.NewClusterHandler(app.Clustering, config.MustDuration(app.Config.App.RequestTimeout))
	adminHandler := handler.NewAdminHandler(app.Admin)
	registerRoutes(router, clusterHandler, adminHandler, app.Config.Auth.JWTSecret)
	return router
}

func registerRoutes(router *gin.Engine, clusters *handler.ClusterHandler, admin *handler.AdminHandler, jwtSecret string) {
	api := router.Group("/api")
	api.GET("/clusters", clusters.List)
	api.GET("/clusters/info", clusters.Info)
	api.GET("/clusters/:id", clusters.Get)
	api.GET("/clustering/model-info", clusters.ModelInfo)
	api.GET("/clustering/report", clusters.Report)
	api.GET("/hot-news", clusters.Hot)

	router.GET("/clusters", clusters.Legacy)

	adminGroup := api.Group("/admin")
	adminGroup.POST("/login", admin.Login)
	adminGroup.POST("/refit", middleware.AuthJWT(jwtSecret, appsvc.AdminRole), admin.Refit)
}
