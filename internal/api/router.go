package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/api/middleware"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，挂好通用中间件与健康检查端点。
func NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationIDMiddleware())
	router.Use(metrics.GinMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
