package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	correlationIDHeader = "X-Correlation-ID"
	correlationIDKey    = "correlationID"
)

// CorrelationIDMiddleware 给每个请求定一个关联 ID：调用方带了就沿用，
// 没带就现生成，请求日志和 apply:run 任务载荷都引用它。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationIDKey, id)
		c.Writer.Header().Set(correlationIDHeader, id)
		c.Next()
	}
}

// GetCorrelationID 取出当前请求的关联 ID，中间件没跑过则为空串。
func GetCorrelationID(c *gin.Context) string {
	id, _ := c.Value(correlationIDKey).(string)
	return id
}
