package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/api/middleware"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/auth"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/config"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/database"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/export"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/store"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	kv *store.Client,
	jobs *apply.JobSource,
	asynqClient *asynq.Client,
	submissions *database.SubmissionStore,
	exporter *export.Exporter,
	linker ObjectLinker,
	tokens *auth.TokenService,
	redisClient *redis.Client,
	logger *slog.Logger,
) {
	runHandler := NewRunHandler(kv, jobs, asynqClient)
	logHandler := NewLogHandler(submissions, exporter, linker)
	tokenHandler := NewTokenHandler(tokens, redisClient)
	wsHandler := NewWsHandler(redisClient, tokens, logger, cfg.API.AllowedOrigins)

	router.Use(middleware.SlogLoggerMiddleware(logger))

	v1 := router.Group("/v1")
	{
		// ws 握手自带令牌校验，不经过内部密钥头。
		v1.GET("/ws", wsHandler.HandleConnection)

		internalGroup := v1.Group("")
		internalGroup.Use(middleware.InternalSecretMiddleware(cfg.API.InternalSecret))
		{
			applyGroup := internalGroup.Group("/apply")
			{
				applyGroup.POST("/start", runHandler.StartRun)
				applyGroup.POST("/stop", runHandler.StopRun)
				applyGroup.GET("/status", runHandler.RunStatus)
			}

			internalGroup.GET("/jobs", runHandler.ListJobs)
			internalGroup.POST("/jobs", runHandler.LoadJobs)
			internalGroup.POST("/log/export", logHandler.ExportLog)
			internalGroup.POST("/auth/ws-token", tokenHandler.IssueWsToken)
		}
	}
}
