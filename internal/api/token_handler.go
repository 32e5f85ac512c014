package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/api/middleware"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/auth"
)

const (
	wsTokenRateLimit  = 30
	wsTokenRateWindow = time.Minute
)

// TokenHandler 给前端换发短期 WebSocket 令牌。端点本身已被内部密钥
// 中间件保护，这里再加一道按来源 IP 的频率限制。
type TokenHandler struct {
	tokens      *auth.TokenService
	redisClient *redis.Client
}

func NewTokenHandler(tokens *auth.TokenService, redisClient *redis.Client) *TokenHandler {
	return &TokenHandler{tokens: tokens, redisClient: redisClient}
}

func (h *TokenHandler) IssueWsToken(c *gin.Context) {
	log := middleware.LoggerFromContext(c)

	key := fmt.Sprintf("ratelimit:ws_token:%s", c.ClientIP())
	over, err := overRateLimit(c.Request.Context(), h.redisClient, key, wsTokenRateLimit, wsTokenRateWindow)
	if err != nil {
		// 限流器故障放行，不拿可用性换保护。
		log.Warn("ws token rate counter failed", "error", err)
	} else if over {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many token requests"})
		return
	}

	token, err := h.tokens.IssueWsToken()
	if err != nil {
		log.Error("issue ws token failed", "error", err)
		Internal(c, "failed to issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
