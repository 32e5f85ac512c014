package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/apply"
)

// ObjectUploader 是对象存储的最小上传面，生产实现是 storage.Client。
type ObjectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, objectSize int64, contentType string) (*minio.UploadInfo, error)
}

// Exporter 把导出文档写到本地下载目录，并尽力同步一份到对象存储。
// 本地落盘是硬性要求；对象存储失败只记日志。
type Exporter struct {
	dir     string
	storage ObjectUploader
	logger  *slog.Logger
}

func NewExporter(dir string, storage ObjectUploader, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, storage: storage, logger: logger}
}

// ExportRun 落盘一次运行的导出文档，文件名带时间戳便于按天翻找。
func (e *Exporter) ExportRun(ctx context.Context, doc apply.RunExport) (string, error) {
	name := fmt.Sprintf("easyapply_run_%s_%s.json", doc.RunID, stamp(doc.ExportedAt))
	return e.write(ctx, name, "runs/"+name, doc)
}

// ExportDocument 落盘任意导出文档（累计台账导出用）。
func (e *Exporter) ExportDocument(ctx context.Context, prefix string, exportedAt time.Time, doc any) (string, error) {
	name := fmt.Sprintf("%s_%s.json", prefix, stamp(exportedAt))
	return e.write(ctx, name, "logs/"+name, doc)
}

func (e *Exporter) write(ctx context.Context, name, objectName string, doc any) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}

	if e.storage != nil {
		if _, err := e.storage.UploadFile(ctx, objectName, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
			e.logger.Warn("upload export to object storage failed",
				slog.String("object", objectName),
				slog.Any("error", err),
			)
		}
	}

	return path, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02-15-04-05")
}
