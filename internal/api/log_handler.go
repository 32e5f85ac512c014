package api

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/api/middleware"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/database"
	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/export"
)

// ObjectLinker 生成对象存储里导出副本的限时下载链接。
type ObjectLinker interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// LogHandler 导出累计投递日志：先从归档库聚合，再落盘成带时间戳的
// JSON 文档。
type LogHandler struct {
	submissions *database.SubmissionStore
	exporter    *export.Exporter
	linker      ObjectLinker
}

func NewLogHandler(submissions *database.SubmissionStore, exporter *export.Exporter, linker ObjectLinker) *LogHandler {
	return &LogHandler{submissions: submissions, exporter: exporter, linker: linker}
}

func (h *LogHandler) ExportLog(c *gin.Context) {
	log := middleware.LoggerFromContext(c)
	now := time.Now()

	doc, err := h.submissions.ExportLog(c.Request.Context(), now)
	if err != nil {
		log.Error("aggregate submission log failed", "error", err)
		Internal(c, "failed to aggregate submission log")
		return
	}

	path, err := h.exporter.ExportDocument(c.Request.Context(), "easyapply_log", now, doc)
	if err != nil {
		log.Error("write log export failed", "error", err)
		Internal(c, "failed to write export file")
		return
	}

	resp := gin.H{"ok": true, "path": path, "rows": len(doc.Raw)}
	if h.linker != nil {
		// 对象名与本地文件名同构，副本放在 logs/ 前缀下。
		objectKey := "logs/" + filepath.Base(path)
		if url, err := h.linker.GeneratePresignedURL(c.Request.Context(), objectKey, 24*time.Hour); err != nil {
			log.Warn("presign export link failed", "error", err)
		} else {
			resp["downloadUrl"] = url
		}
	}

	log.Info("cumulative log exported",
		"path", path,
		"rows", len(doc.Raw),
	)
	c.JSON(http.StatusOK, resp)
}
