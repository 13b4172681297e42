// Package taskstore 两级任务存储
//
// 组合缓存层（Redis，快路径）与持久层（SQL，慢路径）提供统一的
// 任务读写入口：
//
//   - Create：双写，任一层失败则创建失败
//   - Get：读穿透（cache miss → 持久层回源 → 回填缓存）
//   - Update：状态机校验 + 乐观锁，缓存为实时权威，持久层
//     失败重试一次后降级为 ErrPersistenceWarning（更新本身成功）
//   - List：两层合并，同 ID 以缓存版本为准
//   - Delete：归档语义（缓存删除 + 持久层置 archived）
//
// 同一任务的更新由 per-id 互斥锁串行化，跨任务更新互不阻塞。
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"
)

// ============================================================================
// 领域错误
// ============================================================================

var (
	// ErrInvalidTransition 非法状态迁移（如终态之后的任何变更）
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrResultImmutable result/error 已写入，不允许二次写入
	ErrResultImmutable = errors.New("task result is write-once")

	// ErrPersistenceWarning 持久层写入失败（已重试一次），缓存仍为权威。
	// 更新本身已生效，调用方可将其视为告警而非失败。
	ErrPersistenceWarning = errors.New("persistence warning: durable tier write failed, cache is authoritative")
)

// EventSink 状态变更事件回调
//
// Store 在每次任务创建/状态变更成功后调用，不得阻塞。
type EventSink func(event *model.TaskEvent)

// ============================================================================
// Store
// ============================================================================

// Store 两级任务存储
type Store struct {
	cache   cache.TaskStateCache
	durable storage.TaskStore
	sink    EventSink

	// locks 按任务 ID 串行化更新，终态后清理
	locks sync.Map // map[string]*sync.Mutex
}

// NewStore 创建两级任务存储
func NewStore(c cache.TaskStateCache, d storage.TaskStore) *Store {
	return &Store{cache: c, durable: d}
}

// SetEventSink 注册状态变更事件回调（启动期调用，不支持并发变更）
func (s *Store) SetEventSink(sink EventSink) {
	s.sink = sink
}

func (s *Store) emit(event *model.TaskEvent) {
	if s.sink != nil {
		s.sink(event)
	}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ============================================================================
// 写路径
// ============================================================================

// Create 创建任务（双写）
//
// 持久层为创建的权威：持久层失败则整体失败；缓存写入失败
// 仅记录日志（后续 Get 会回源持久层并回填）。
func (s *Store) Create(ctx context.Context, task *model.Task) error {
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.Version == 0 {
		task.Version = 1
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	if err := s.durable.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}

	if err := s.cache.SetTask(ctx, task); err != nil {
		log.Printf("[TaskStore] Cache write failed for task %s: %v", task.ID, err)
	}

	s.emit(&model.TaskEvent{
		TaskID:    task.ID,
		Type:      task.Type,
		To:        task.Status,
		Owner:     task.Owner,
		Timestamp: task.UpdatedAt,
	})
	return nil
}

// Get 读取任务（读穿透）
//
// 缓存命中直接返回；未命中或缓存不可用时回源持久层，
// 命中后回填缓存。两层都没有则返回 storage.ErrNotFound。
func (s *Store) Get(ctx context.Context, id string) (*model.Task, error) {
	cached, err := s.cache.GetTask(ctx, id)
	if err != nil {
		log.Printf("[TaskStore] Cache read failed for task %s: %v", id, err)
	}
	if cached != nil {
		return cached, nil
	}

	task, err := s.durable.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetTask(ctx, task); err != nil {
		log.Printf("[TaskStore] Cache repopulate failed for task %s: %v", id, err)
	}
	return task, nil
}

// GetByDedupKey 按幂等键查找非终态任务
//
// 缓存索引优先，未命中回源持久层。不存在返回 storage.ErrNotFound。
func (s *Store) GetByDedupKey(ctx context.Context, dedupKey string) (*model.Task, error) {
	cached, err := s.cache.GetTaskByDedupKey(ctx, dedupKey)
	if err != nil {
		log.Printf("[TaskStore] Cache dedup lookup failed for key %s: %v", dedupKey, err)
	}
	if cached != nil {
		return cached, nil
	}
	return s.durable.GetTaskByDedupKey(ctx, dedupKey)
}

// Update 将任务迁移到 next 状态，可附带 result / taskErr
//
// 约束：
//   - 迁移必须符合状态机（否则 ErrInvalidTransition）
//   - result 仅在 next=completed 时写入；error 仅在 next=failed/cancelled
//   - result/error 一次写入后不可变（ErrResultImmutable）
//
// 返回更新后的任务快照。持久层两次写入均失败时返回快照和
// ErrPersistenceWarning：状态变更已在缓存生效。
func (s *Store) Update(ctx context.Context, id string, next model.TaskStatus, result json.RawMessage, taskErr *model.TaskError) (*model.Task, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, current.Status, next, id)
	}
	if result != nil && current.Result != nil {
		return nil, fmt.Errorf("%w: task %s already has a result", ErrResultImmutable, id)
	}
	if taskErr != nil && current.Error != nil {
		return nil, fmt.Errorf("%w: task %s already has an error", ErrResultImmutable, id)
	}

	from := current.Status
	expectedVersion := current.Version

	updated := current.Clone()
	updated.Status = next
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = time.Now().UTC()
	if next == model.TaskStatusCompleted {
		updated.Result = result
	}
	if next == model.TaskStatusFailed || next == model.TaskStatusCancelled {
		updated.Error = taskErr
	}

	// 缓存先行：实时状态以缓存为准
	if err := s.cache.SetTask(ctx, updated); err != nil {
		log.Printf("[TaskStore] Cache write failed for task %s: %v", id, err)
	}

	// 持久层：失败重试一次，仍失败降级为告警
	persistErr := s.durable.UpdateTask(ctx, updated, expectedVersion)
	if persistErr != nil && !errors.Is(persistErr, storage.ErrConflict) {
		log.Printf("[TaskStore] Durable update failed for task %s, retrying: %v", id, persistErr)
		persistErr = s.durable.UpdateTask(ctx, updated, expectedVersion)
	}

	if updated.Status.IsTerminal() {
		s.locks.Delete(id)
	}

	s.emit(&model.TaskEvent{
		TaskID:    updated.ID,
		Type:      updated.Type,
		From:      from,
		To:        updated.Status,
		Owner:     updated.Owner,
		Error:     updated.Error,
		Timestamp: updated.UpdatedAt,
	})

	if persistErr != nil {
		log.Printf("[TaskStore] Durable update failed for task %s after retry: %v", id, persistErr)
		return updated, fmt.Errorf("%w: %v", ErrPersistenceWarning, persistErr)
	}
	return updated, nil
}

// ============================================================================
// 查询与删除
// ============================================================================

// List 按过滤条件查询任务
//
// 合并两层结果：持久层提供全集（不含归档），缓存覆盖其中的
// 实时版本。结果按创建时间倒序。
func (s *Store) List(ctx context.Context, filter *model.TaskFilter) ([]*model.Task, error) {
	// 持久层查询不带 Status/Limit：状态以缓存为准，必须先合并
	// 再过滤，否则持久层的滞后状态会把缓存权威条目挤出结果。
	// Type/Owner/时间是创建后不变的字段，可以下推给持久层。
	durableFilter := filter
	if filter != nil {
		f := *filter
		f.Status = ""
		f.Limit = 0
		durableFilter = &f
	}

	durableTasks, err := s.durable.ListTasks(ctx, durableFilter)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*model.Task, len(durableTasks))
	for _, t := range durableTasks {
		merged[t.ID] = t
	}

	cachedTasks, err := s.cache.ListTasks(ctx)
	if err != nil {
		log.Printf("[TaskStore] Cache list failed: %v", err)
	}
	for _, t := range cachedTasks {
		if _, ok := merged[t.ID]; !ok {
			continue // 缓存残留（已归档任务）不进入列表
		}
		merged[t.ID] = t
	}

	tasks := make([]*model.Task, 0, len(merged))
	for _, t := range merged {
		if filter == nil || filter.Matches(t) {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if filter != nil && filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// Delete 删除任务（归档语义）
//
// 缓存条目移除，持久层置 archived 标记，物理记录保留供审计。
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.cache.DeleteTask(ctx, id); err != nil {
		log.Printf("[TaskStore] Cache delete failed for task %s: %v", id, err)
	}
	return s.durable.ArchiveTask(ctx, id)
}
