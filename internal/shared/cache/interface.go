// Package cache 缓存层抽象接口
//
// 提供任务实时状态和 Bot 心跳的快速存取能力，当前由 Redis 实现。
// 缓存层是"快路径"：任务的实时状态以缓存为准，持久层用于审计和恢复。
package cache

import (
	"context"

	"brebot-admin/internal/shared/model"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// TaskStateCache 任务状态缓存接口
//
// 以 task_id 为键存取完整 Task 记录。SetTask 覆盖写入，
// GetTask 未命中时返回 (nil, nil)，由调用方回源持久层。
type TaskStateCache interface {
	SetTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context) ([]*model.Task, error)

	// GetTaskByDedupKey 按幂等键查找非终态任务，未命中返回 (nil, nil)
	GetTaskByDedupKey(ctx context.Context, dedupKey string) (*model.Task, error)
}

// BotHeartbeatCache Bot 心跳缓存接口
type BotHeartbeatCache interface {
	UpdateBotHeartbeat(ctx context.Context, botID string, status model.BotStatus, healthScore int) error
	GetBotHeartbeat(ctx context.Context, botID string) (*BotHeartbeat, error)
	DeleteBotHeartbeat(ctx context.Context, botID string) error
	ListOnlineBots(ctx context.Context) ([]string, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	TaskStateCache
	BotHeartbeatCache
	Close() error
}
