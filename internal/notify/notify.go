package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel 是进度消息的 Redis Pub/Sub 频道，WebSocket 端订阅后转发给界面。
const Channel = "apply_notify"

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 字段名与 popup 的解析保持一致。
type Message struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	TypeProgress = "progress"
	TypeDone     = "done"
	TypeError    = "error"
)

// Publisher 把运行进度发布到 Redis 频道。发布失败只记日志：
// 通知丢失不影响运行本身。
type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewPublisher(rdb *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, msgType, text string) {
	payload, err := json.Marshal(Message{From: "coordinator", Type: msgType, Text: text})
	if err != nil {
		p.logger.Error("marshal notify message failed", slog.Any("error", err))
		return
	}
	if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Warn("publish notify message failed", slog.Any("error", err))
	}
}

// Progress 推送一条进度消息。
func (p *Publisher) Progress(ctx context.Context, text string) { p.publish(ctx, TypeProgress, text) }

// Done 推送运行结束消息。
func (p *Publisher) Done(ctx context.Context, text string) { p.publish(ctx, TypeDone, text) }

// Error 推送运行出错消息。
func (p *Publisher) Error(ctx context.Context, text string) { p.publish(ctx, TypeError, text) }
