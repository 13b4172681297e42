package taskstore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDurable 内存持久层，支持故障注入
type fakeDurable struct {
	mu       sync.Mutex
	tasks    map[string]*model.Task
	archived map[string]bool

	// failUpdates 剩余的 UpdateTask 注入失败次数
	failUpdates int
}

var _ storage.TaskStore = (*fakeDurable)(nil)

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		tasks:    make(map[string]*model.Task),
		archived: make(map[string]bool),
	}
}

func (f *fakeDurable) CreateTask(ctx context.Context, task *model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; ok {
		return storage.ErrDuplicate
	}
	f.tasks[task.ID] = task.Clone()
	return nil
}

func (f *fakeDurable) GetTask(ctx context.Context, id string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

func (f *fakeDurable) UpdateTask(ctx context.Context, task *model.Task, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates > 0 {
		f.failUpdates--
		return storage.ErrUnavailable
	}
	current, ok := f.tasks[task.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if current.Version != expectedVersion {
		return storage.ErrConflict
	}
	f.tasks[task.ID] = task.Clone()
	return nil
}

func (f *fakeDurable) ListTasks(ctx context.Context, filter *model.TaskFilter) ([]*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Task
	for id, t := range f.tasks {
		if f.archived[id] {
			continue
		}
		if filter == nil || filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (f *fakeDurable) ArchiveTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return storage.ErrNotFound
	}
	f.archived[id] = true
	return nil
}

func (f *fakeDurable) GetTaskByDedupKey(ctx context.Context, dedupKey string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.tasks {
		if f.archived[id] || t.DedupKey != dedupKey || t.Status.IsTerminal() {
			continue
		}
		return t.Clone(), nil
	}
	return nil, storage.ErrNotFound
}

func newTestStore(t *testing.T) (*Store, *cache.MemoryCache, *fakeDurable) {
	t.Helper()
	mc := cache.NewMemoryCache()
	fd := newFakeDurable()
	return NewStore(mc, fd), mc, fd
}

func newTask(id string) *model.Task {
	return &model.Task{
		ID:    id,
		Type:  model.TaskTypeChat,
		Input: json.RawMessage(`{"message":"hi"}`),
	}
}

// ============================================================================
// Create / Get
// ============================================================================

func TestStoreCreateDefaults(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	task := newTask("task-1")
	require.NoError(t, s.Create(ctx, task))

	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, int64(1), task.Version)
	assert.False(t, task.CreatedAt.IsZero())

	got, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.ID)
}

func TestStoreGetReadThrough(t *testing.T) {
	s, mc, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("task-rt")))

	// 模拟缓存逐出
	require.NoError(t, mc.DeleteTask(ctx, "task-rt"))
	cached, err := mc.GetTask(ctx, "task-rt")
	require.NoError(t, err)
	require.Nil(t, cached)

	// 读穿透回源持久层
	got, err := s.Get(ctx, "task-rt")
	require.NoError(t, err)
	assert.Equal(t, "task-rt", got.ID)

	// 并回填缓存
	cached, err = mc.GetTask(ctx, "task-rt")
	require.NoError(t, err)
	require.NotNil(t, cached)
}

func TestStoreGetCacheUnavailable(t *testing.T) {
	s, mc, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("task-deg")))

	// 缓存整体不可用时降级到持久层
	mc.SetUnavailable(true)
	got, err := s.Get(ctx, "task-deg")
	require.NoError(t, err)
	assert.Equal(t, "task-deg", got.ID)
}

func TestStoreGetNotFound(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// ============================================================================
// Update
// ============================================================================

func TestStoreUpdateTransitions(t *testing.T) {
	s, _, fd := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("task-up")))

	running, err := s.Update(ctx, "task-up", model.TaskStatusRunning, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRunning, running.Status)
	assert.Equal(t, int64(2), running.Version)

	result := json.RawMessage(`{"reply":"done"}`)
	done, err := s.Update(ctx, "task-up", model.TaskStatusCompleted, result, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, done.Status)
	assert.JSONEq(t, `{"reply":"done"}`, string(done.Result))

	// 持久层同步更新
	durable, err := fd.GetTask(ctx, "task-up")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, durable.Status)
	assert.Equal(t, int64(3), durable.Version)
}

func TestStoreUpdateInvalidTransition(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("task-bad")))

	// pending → completed 不合法
	_, err := s.Update(ctx, "task-bad", model.TaskStatusCompleted, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// 终态吸收
	_, err = s.Update(ctx, "task-bad", model.TaskStatusCancelled, nil, nil)
	require.NoError(t, err)
	_, err = s.Update(ctx, "task-bad", model.TaskStatusRunning, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStoreUpdateWriteOnceResult(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	task := newTask("task-wo")
	require.NoError(t, s.Create(ctx, task))
	_, err := s.Update(ctx, "task-wo", model.TaskStatusRunning, nil, nil)
	require.NoError(t, err)
	_, err = s.Update(ctx, "task-wo", model.TaskStatusCompleted, json.RawMessage(`{"n":1}`), nil)
	require.NoError(t, err)

	// 终态后任何带 result 的更新都被状态机拒绝
	_, err = s.Update(ctx, "task-wo", model.TaskStatusCompleted, json.RawMessage(`{"n":2}`), nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.Get(ctx, "task-wo")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got.Result))
}

func TestStoreUpdatePersistenceWarning(t *testing.T) {
	s, _, fd := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("task-pw")))

	// 第一次失败后重试成功：无告警
	fd.failUpdates = 1
	_, err := s.Update(ctx, "task-pw", model.TaskStatusRunning, nil, nil)
	require.NoError(t, err)

	// 两次都失败：更新在缓存生效，返回告警
	fd.failUpdates = 2
	updated, err := s.Update(ctx, "task-pw", model.TaskStatusCompleted, json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, ErrPersistenceWarning)
	require.NotNil(t, updated)
	assert.Equal(t, model.TaskStatusCompleted, updated.Status)

	// 缓存为权威：读路径返回新状态
	got, err := s.Get(ctx, "task-pw")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)

	// 持久层停留在旧版本
	durable, err := fd.GetTask(ctx, "task-pw")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRunning, durable.Status)
}

func TestStoreUpdateEmitsEvents(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var events []*model.TaskEvent
	s.SetEventSink(func(e *model.TaskEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	require.NoError(t, s.Create(ctx, newTask("task-ev")))
	_, err := s.Update(ctx, "task-ev", model.TaskStatusRunning, nil, nil)
	require.NoError(t, err)
	_, err = s.Update(ctx, "task-ev", model.TaskStatusFailed, nil,
		&model.TaskError{Kind: model.ErrorKindHandler, Message: "boom"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, model.TaskStatusPending, events[0].To)
	assert.Equal(t, model.TaskStatusPending, events[1].From)
	assert.Equal(t, model.TaskStatusRunning, events[1].To)
	assert.Equal(t, model.TaskStatusFailed, events[2].To)
	require.NotNil(t, events[2].Error)
	assert.Equal(t, model.ErrorKindHandler, events[2].Error.Kind)
}

// ============================================================================
// List / Delete / DedupKey
// ============================================================================

func TestStoreListMergesCacheWins(t *testing.T) {
	s, mc, fd := newTestStore(t)
	ctx := context.Background()

	t1 := newTask("task-a")
	t2 := newTask("task-b")
	t2.CreatedAt = time.Now().UTC().Add(time.Second)
	require.NoError(t, s.Create(ctx, t1))
	require.NoError(t, s.Create(ctx, t2))

	// 缓存中的 task-a 比持久层新（模拟持久层落后）
	fresher := t1.Clone()
	fresher.Status = model.TaskStatusRunning
	fresher.Version = 2
	require.NoError(t, mc.SetTask(ctx, fresher))

	tasks, err := s.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	byID := map[string]*model.Task{}
	for _, task := range tasks {
		byID[task.ID] = task
	}
	assert.Equal(t, model.TaskStatusRunning, byID["task-a"].Status)

	// 持久层停留在 pending，确认返回的是缓存版本
	durable, err := fd.GetTask(ctx, "task-a")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, durable.Status)
}

func TestStoreListFilterAndLimit(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"t-1", "t-2", "t-3"} {
		require.NoError(t, s.Create(ctx, newTask(id)))
	}
	_, err := s.Update(ctx, "t-2", model.TaskStatusRunning, nil, nil)
	require.NoError(t, err)

	tasks, err := s.List(ctx, &model.TaskFilter{Status: model.TaskStatusPending})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = s.List(ctx, &model.TaskFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestStoreListStatusFilterUsesCacheState(t *testing.T) {
	s, _, fd := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("task-lag")))
	_, err := s.Update(ctx, "task-lag", model.TaskStatusRunning, nil, nil)
	require.NoError(t, err)

	// 持久层两次写入都失败：缓存 completed，持久层停留在 running
	fd.failUpdates = 2
	_, err = s.Update(ctx, "task-lag", model.TaskStatusCompleted, json.RawMessage(`{}`), nil)
	require.ErrorIs(t, err, ErrPersistenceWarning)

	// 状态过滤以缓存为准，持久层滞后不影响命中
	tasks, err := s.List(ctx, &model.TaskFilter{Status: model.TaskStatusCompleted})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-lag", tasks[0].ID)
	assert.Equal(t, model.TaskStatusCompleted, tasks[0].Status)

	// 持久层的滞后状态不再命中
	tasks, err = s.List(ctx, &model.TaskFilter{Status: model.TaskStatusRunning})
	require.NoError(t, err)
	assert.Len(t, tasks, 0)
}

func TestStoreDeleteArchives(t *testing.T) {
	s, mc, fd := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("task-del")))
	require.NoError(t, s.Delete(ctx, "task-del"))

	// 缓存移除
	cached, err := mc.GetTask(ctx, "task-del")
	require.NoError(t, err)
	assert.Nil(t, cached)

	// 列表不可见
	tasks, err := s.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, tasks, 0)

	// 持久层物理记录保留
	durable, err := fd.GetTask(ctx, "task-del")
	require.NoError(t, err)
	assert.Equal(t, "task-del", durable.ID)
}

func TestStoreGetByDedupKey(t *testing.T) {
	s, mc, _ := newTestStore(t)
	ctx := context.Background()

	task := newTask("task-dk")
	task.DedupKey = "submit-42"
	require.NoError(t, s.Create(ctx, task))

	got, err := s.GetByDedupKey(ctx, "submit-42")
	require.NoError(t, err)
	assert.Equal(t, "task-dk", got.ID)

	// 缓存索引失效后回源持久层
	require.NoError(t, mc.DeleteTask(ctx, "task-dk"))
	got, err = s.GetByDedupKey(ctx, "submit-42")
	require.NoError(t, err)
	assert.Equal(t, "task-dk", got.ID)

	// 终态释放幂等键
	_, err = s.Update(ctx, "task-dk", model.TaskStatusCancelled, nil, nil)
	require.NoError(t, err)
	_, err = s.GetByDedupKey(ctx, "submit-42")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
