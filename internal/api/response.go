package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error 以 {"error": msg} 统一错误响应形状，和扩展端的解析保持一致。
func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// BadRequest 用于请求体校验失败。
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }

// Internal 用于存储或下游故障，细节只进日志不出线。
func Internal(c *gin.Context, msg string) { Error(c, http.StatusInternalServerError, msg) }
