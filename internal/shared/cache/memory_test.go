// Package cache MemoryCache 测试
package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brebot-admin/internal/shared/model"
)

// TestMemoryCache_TaskRoundTrip 验证任务写入/读取/删除
func TestMemoryCache_TaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	task := &model.Task{ID: "task-1", Type: model.TaskTypeChat, Status: model.TaskStatusPending}
	require.NoError(t, c.SetTask(ctx, task))

	got, err := c.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.TaskStatusPending, got.Status)

	// 返回值是副本，修改不影响缓存内容
	got.Status = model.TaskStatusRunning
	again, err := c.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, again.Status)

	require.NoError(t, c.DeleteTask(ctx, "task-1"))
	gone, err := c.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

// TestMemoryCache_DedupIndex 验证幂等键索引的生命周期
func TestMemoryCache_DedupIndex(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	task := &model.Task{
		ID:       "task-1",
		Type:     model.TaskTypePipelineStep,
		Status:   model.TaskStatusPending,
		DedupKey: "pipeline:step-3",
	}
	require.NoError(t, c.SetTask(ctx, task))

	found, err := c.GetTaskByDedupKey(ctx, "pipeline:step-3")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "task-1", found.ID)

	// 终态写入后幂等索引被清除
	task.Status = model.TaskStatusCompleted
	require.NoError(t, c.SetTask(ctx, task))

	found, err = c.GetTaskByDedupKey(ctx, "pipeline:step-3")
	require.NoError(t, err)
	assert.Nil(t, found)
}

// TestMemoryCache_Unavailable 验证不可用模式下所有操作报错
func TestMemoryCache_Unavailable(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	c.SetUnavailable(true)

	err := c.SetTask(ctx, &model.Task{ID: "task-1"})
	assert.ErrorIs(t, err, ErrCacheUnavailable)

	_, err = c.GetTask(ctx, "task-1")
	assert.ErrorIs(t, err, ErrCacheUnavailable)

	_, err = c.ListTasks(ctx)
	assert.ErrorIs(t, err, ErrCacheUnavailable)
}

// TestMemoryCache_BotHeartbeat 验证心跳与在线列表
func TestMemoryCache_BotHeartbeat(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.UpdateBotHeartbeat(ctx, "bot-1", model.BotStatusOnline, 90))
	require.NoError(t, c.UpdateBotHeartbeat(ctx, "bot-2", model.BotStatusOffline, 10))

	hb, err := c.GetBotHeartbeat(ctx, "bot-1")
	require.NoError(t, err)
	require.NotNil(t, hb)
	assert.Equal(t, 90, hb.HealthScore)

	online, err := c.ListOnlineBots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bot-1"}, online)
}
