package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vnnews-clustering/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Enabled bool   `json:"enabled"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Check reports dependency health. Disabled backends count as healthy.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	mysqlStatus := h.checkMySQL(ctx)
	redisStatus := h.checkRedis(ctx)
	rmqStatus := h.checkRabbitMQ()
	sqliteStatus := h.checkSQLite(ctx)

	allOK := mysqlStatus.OK && redisStatus.OK && rmqStatus.OK && sqliteStatus.OK
	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":              h.app.Config.App.Name,
		"env":              h.app.Config.App.Env,
		"uptime_sec":       int(time.Since(h.app.StartedAt).Seconds()),
		"clustering_ready": h.app.Clustering != nil && h.app.Clustering.Ready(),
		"dependencies": gin.H{
			"mysql":    mysqlStatus,
			"redis":    redisStatus,
			"rabbitmq": rmqStatus,
			"sqlite":   sqliteStatus,
		},
	})
}

// Ready answers 503 until a clustering model is being served.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.app.Clustering == nil || !h.app.Clustering.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *HealthHandler) checkMySQL(ctx context.Context) dependencyStatus {
	if h.app.MySQL == nil {
		return dependencyStatus{OK: true}
	}
	sqlDB, err := h.app.MySQL.DB()
	if err != nil {
		return dependencyStatus{OK: false, Enabled: true, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{OK: true, Enabled: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if h.app.Redis == nil {
		return dependencyStatus{OK: true}
	}
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{OK: true, Enabled: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn == nil {
		return dependencyStatus{OK: true}
	}
	if h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Enabled: true, Message: "connection closed"}
	}
	return dependencyStatus{OK: true, Enabled: true}
}

func (h *HealthHandler) checkSQLite(ctx context.Context) dependencyStatus {
	if h.app.SQLite == nil {
		return dependencyStatus{OK: true}
	}
	if err := h.app.SQLite.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Enabled: true, Message: err.Error()}
	}
	return dependencyStatus{OK: true, Enabled: true}
}
