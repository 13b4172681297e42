// Package redis 任务状态缓存操作
//
// 任务记录以 JSON 字符串存储在 task:{id} 键下；
// 幂等键索引存储在 task_dedup:{key} 键下，值为 task_id。
// 终态任务写入时设置 TTL（TTLTaskTerminal）并清除幂等索引。
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/model"
)

// SetTask 写入任务状态
func (s *Store) SetTask(ctx context.Context, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := cache.KeyTask + task.ID

	pipe := s.client.Pipeline()
	if task.IsTerminal() {
		pipe.Set(ctx, key, data, cache.TTLTaskTerminal)
		if task.DedupKey != "" {
			pipe.Del(ctx, cache.KeyTaskDedup+task.DedupKey)
		}
	} else {
		pipe.Set(ctx, key, data, 0)
		if task.DedupKey != "" {
			pipe.Set(ctx, cache.KeyTaskDedup+task.DedupKey, task.ID, 0)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask 读取任务状态，未命中返回 (nil, nil)
func (s *Store) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	data, err := s.client.Get(ctx, cache.KeyTask+taskID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}

	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", taskID, err)
	}
	return &task, nil
}

// DeleteTask 删除任务状态及其幂等索引
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, cache.KeyTask+taskID)
	if task != nil && task.DedupKey != "" {
		pipe.Del(ctx, cache.KeyTaskDedup+task.DedupKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ListTasks 列出缓存中的全部任务
func (s *Store) ListTasks(ctx context.Context) ([]*model.Task, error) {
	var tasks []*model.Task
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, cache.KeyTask+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan tasks: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, goredis.Nil) {
					continue // 扫描和读取之间过期
				}
				return nil, err
			}
			var task model.Task
			if err := json.Unmarshal(data, &task); err != nil {
				continue // 跳过损坏的条目
			}
			tasks = append(tasks, &task)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return tasks, nil
}

// GetTaskByDedupKey 按幂等键查找非终态任务，未命中返回 (nil, nil)
func (s *Store) GetTaskByDedupKey(ctx context.Context, dedupKey string) (*model.Task, error) {
	taskID, err := s.client.Get(ctx, cache.KeyTaskDedup+dedupKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dedup key %s: %w", dedupKey, err)
	}

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.IsTerminal() {
		return nil, nil
	}
	return task, nil
}
