// Package cache 进程内缓存实现
//
// MemoryCache 是功能完整的进程内 Cache 实现，用于测试和无 Redis 的单机部署。
// 语义与 Redis 实现一致：GetTask 未命中返回 (nil, nil)。
package cache

import (
	"context"
	"sync"
	"time"

	"brebot-admin/internal/shared/model"
)

// ============================================================================
// MemoryCache - 进程内 Cache 实现
// ============================================================================

// MemoryCache 进程内缓存
type MemoryCache struct {
	mu         sync.RWMutex
	tasks      map[string]*model.Task
	dedup      map[string]string // dedup_key -> task_id
	heartbeats map[string]*BotHeartbeat

	// unavailable 为 true 时所有操作返回 errUnavailable（测试降级路径用）
	unavailable bool
}

// NewMemoryCache 创建进程内缓存实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		tasks:      make(map[string]*model.Task),
		dedup:      make(map[string]string),
		heartbeats: make(map[string]*BotHeartbeat),
	}
}

// SetUnavailable 模拟缓存不可用（仅测试使用）
func (c *MemoryCache) SetUnavailable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable = v
}

// Close 关闭缓存
func (c *MemoryCache) Close() error {
	return nil
}

// TaskStateCache 方法

func (c *MemoryCache) SetTask(ctx context.Context, task *model.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return ErrCacheUnavailable
	}
	cp := task.Clone()
	c.tasks[task.ID] = cp
	if task.DedupKey != "" {
		if task.IsTerminal() {
			delete(c.dedup, task.DedupKey)
		} else {
			c.dedup[task.DedupKey] = task.ID
		}
	}
	return nil
}

func (c *MemoryCache) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.unavailable {
		return nil, ErrCacheUnavailable
	}
	task, ok := c.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return task.Clone(), nil
}

func (c *MemoryCache) DeleteTask(ctx context.Context, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return ErrCacheUnavailable
	}
	if task, ok := c.tasks[taskID]; ok && task.DedupKey != "" {
		delete(c.dedup, task.DedupKey)
	}
	delete(c.tasks, taskID)
	return nil
}

func (c *MemoryCache) ListTasks(ctx context.Context) ([]*model.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.unavailable {
		return nil, ErrCacheUnavailable
	}
	tasks := make([]*model.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t.Clone())
	}
	return tasks, nil
}

func (c *MemoryCache) GetTaskByDedupKey(ctx context.Context, dedupKey string) (*model.Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.unavailable {
		return nil, ErrCacheUnavailable
	}
	id, ok := c.dedup[dedupKey]
	if !ok {
		return nil, nil
	}
	task, ok := c.tasks[id]
	if !ok || task.IsTerminal() {
		return nil, nil
	}
	return task.Clone(), nil
}

// BotHeartbeatCache 方法

func (c *MemoryCache) UpdateBotHeartbeat(ctx context.Context, botID string, status model.BotStatus, healthScore int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return ErrCacheUnavailable
	}
	c.heartbeats[botID] = &BotHeartbeat{
		BotID:       botID,
		Status:      status,
		HealthScore: healthScore,
		UpdatedAt:   time.Now(),
	}
	return nil
}

func (c *MemoryCache) GetBotHeartbeat(ctx context.Context, botID string) (*BotHeartbeat, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.unavailable {
		return nil, ErrCacheUnavailable
	}
	hb, ok := c.heartbeats[botID]
	if !ok {
		return nil, nil
	}
	cp := *hb
	return &cp, nil
}

func (c *MemoryCache) DeleteBotHeartbeat(ctx context.Context, botID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return ErrCacheUnavailable
	}
	delete(c.heartbeats, botID)
	return nil
}

func (c *MemoryCache) ListOnlineBots(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.unavailable {
		return nil, ErrCacheUnavailable
	}
	var ids []string
	for id, hb := range c.heartbeats {
		if hb.Status != model.BotStatusOffline {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// 确保 MemoryCache 实现了 Cache 接口
var _ Cache = (*MemoryCache)(nil)
