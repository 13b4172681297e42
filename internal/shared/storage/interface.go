// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：repository/（SQL）
//   - 初始化时通过依赖注入传入实现
//
// 注意：缓存层接口位于独立的 cache/ 包。
package storage

import (
	"context"

	"brebot-admin/internal/shared/model"
)

// ============================================================================
// 领域存储接口
// ============================================================================

// TaskStore 任务持久化接口（慢路径，审计保留）
//
// 删除语义为归档：DeleteTask 仅置 archived 标记，物理记录保留。
type TaskStore interface {
	CreateTask(ctx context.Context, task *model.Task) error

	// GetTask 按 ID 读取任务，不存在返回 ErrNotFound
	GetTask(ctx context.Context, id string) (*model.Task, error)

	// UpdateTask 整记录覆盖写，按 expectedVersion 做乐观锁：
	// 当前版本不等于 expectedVersion 时返回 ErrConflict。
	UpdateTask(ctx context.Context, task *model.Task, expectedVersion int64) error

	// ListTasks 按过滤条件查询（不含已归档记录）
	ListTasks(ctx context.Context, filter *model.TaskFilter) ([]*model.Task, error)

	// ArchiveTask 归档任务（审计保留，不物理删除）
	ArchiveTask(ctx context.Context, id string) error

	// GetTaskByDedupKey 按幂等键查找非终态未归档任务，不存在返回 ErrNotFound
	GetTaskByDedupKey(ctx context.Context, dedupKey string) (*model.Task, error)
}

// BotStore Bot 持久化接口
//
// Bot 永不删除，只通过 UpdateBot 标记 offline。
type BotStore interface {
	CreateBot(ctx context.Context, bot *model.Bot) error
	GetBot(ctx context.Context, id string) (*model.Bot, error)
	UpdateBot(ctx context.Context, bot *model.Bot) error
	ListBots(ctx context.Context) ([]*model.Bot, error)
}

// ConnectionStore 外部服务连接持久化接口
type ConnectionStore interface {
	CreateConnection(ctx context.Context, conn *model.Connection) error
	GetConnection(ctx context.Context, id string) (*model.Connection, error)
	UpdateConnection(ctx context.Context, conn *model.Connection) error
	ListConnections(ctx context.Context) ([]*model.Connection, error)
	DeleteConnection(ctx context.Context, id string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	TaskStore
	BotStore
	ConnectionStore
	Close() error
}
