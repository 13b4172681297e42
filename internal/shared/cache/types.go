// Package cache 缓存层类型定义
package cache

import (
	"time"

	"brebot-admin/internal/shared/model"
)

// ============================================================================
// 缓存数据类型
// ============================================================================

// BotHeartbeat Bot 心跳数据
type BotHeartbeat struct {
	BotID       string          `json:"bot_id" redis:"bot_id"`
	Status      model.BotStatus `json:"status" redis:"status"`
	HealthScore int             `json:"health_score" redis:"health_score"`
	UpdatedAt   time.Time       `json:"updated_at" redis:"updated_at"`
}

// ============================================================================
// Key 前缀和 TTL 常量
// ============================================================================

const (
	// Key 前缀
	KeyTask         = "task:"
	KeyTaskDedup    = "task_dedup:"
	KeyBotHeartbeat = "bot_heartbeat:"
	KeyOnlineBots   = "online_bots"

	// TTL 常量
	// 终态任务在缓存中保留一段时间供轮询方读取，之后以持久层为准
	TTLTaskTerminal = 24 * time.Hour
	TTLBotHeartbeat = 60 * time.Second
)
