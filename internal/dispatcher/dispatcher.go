// Package dispatcher 异步任务调度器
//
// 职责：
//   - 接受任务提交（非阻塞，立即返回 pending 记录）
//   - 幂等提交：携带 dedup_key 且存在非终态同键任务时复用其 ID
//   - 每个任务一个执行 goroutine，同一任务 ID 永不并发执行
//   - 按类型超时（默认 120s），超时任务以 Timeout 错误进入 failed
//   - 协作式取消：取消信号通过 ctx 传递给 Handler
//
// 失败即终态：failed 任务不自动重试，重试 = 提交新任务。
package dispatcher

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"brebot-admin/internal/config"
	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"
	"brebot-admin/internal/taskstore"
)

// SubmitRequest 任务提交请求
type SubmitRequest struct {
	// Type 任务类型，必须已注册 Handler
	Type model.TaskType

	// Input 任务输入载荷（原始 JSON，由 Handler 校验）
	Input json.RawMessage

	// Owner 处理该任务的 Bot ID（可选）
	Owner string

	// DedupKey 幂等提交键（可选）
	DedupKey string
}

// Dispatcher 任务调度器
type Dispatcher struct {
	store    *taskstore.Store
	registry *Registry
	notifier *Notifier
	cfg      config.DispatcherConfig
	metrics  *Metrics

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	// dedupMu 串行化带幂等键的"查找+创建"，并发同键提交只产生一个任务
	dedupMu sync.Mutex

	// baseCtx 所有任务执行的根上下文，Shutdown 时取消
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New 创建调度器并冻结注册表
//
// 调用后 registry 不再接受注册；任务事件经 notifier 扇出。
func New(store *taskstore.Store, registry *Registry, notifier *Notifier, cfg config.DispatcherConfig, metrics *Metrics) *Dispatcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 120 * time.Second
	}

	registry.Freeze()
	store.SetEventSink(notifier.Publish)
	notifier.OnDrop(metrics.RecordEventDropped)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:      store,
		registry:   registry,
		notifier:   notifier,
		cfg:        cfg,
		metrics:    metrics,
		active:     make(map[string]context.CancelFunc),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// Store 返回底层任务存储（查询路径直接走存储）
func (d *Dispatcher) Store() *taskstore.Store {
	return d.store
}

// Notifier 返回事件通知器
func (d *Dispatcher) Notifier() *Notifier {
	return d.notifier
}

// Registry 返回 Handler 注册表（已冻结）
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// ============================================================================
// 提交与取消
// ============================================================================

// Submit 提交任务（非阻塞）
//
// 校验类型、执行幂等检查、创建 pending 记录后立即返回，
// Handler 在独立 goroutine 中执行。幂等复用时返回既有任务。
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*model.Task, error) {
	handler, err := d.registry.Get(req.Type)
	if err != nil {
		return nil, err
	}

	// 幂等检查：非终态同键任务直接复用。
	// 查找和创建在 dedupMu 下原子完成，并发同键提交只产生一个任务。
	if req.DedupKey != "" {
		d.dedupMu.Lock()
		defer d.dedupMu.Unlock()

		existing, err := d.store.GetByDedupKey(ctx, req.DedupKey)
		if err == nil {
			log.Printf("[Dispatcher] Dedup hit for key %s, reusing task %s", req.DedupKey, existing.ID)
			d.metrics.RecordDeduped()
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("dedup lookup: %w", err)
		}
	}

	task := &model.Task{
		ID:       generateID("task"),
		Type:     req.Type,
		Status:   model.TaskStatusPending,
		Input:    req.Input,
		Owner:    req.Owner,
		DedupKey: req.DedupKey,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	if err := d.store.Create(ctx, task); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	taskCtx, cancel := context.WithCancel(d.baseCtx)
	d.active[task.ID] = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	d.metrics.RecordSubmitted(string(task.Type))
	log.Printf("[Dispatcher] Submitted task %s (type=%s, owner=%s)", task.ID, task.Type, task.Owner)

	go d.run(taskCtx, task, handler)
	return task, nil
}

// Cancel 取消任务
//
// 执行中的任务收到 ctx 取消信号，由执行 goroutine 写入终态；
// 尚未开始的任务直接迁移到 cancelled。已终态返回 ErrInvalidTransition。
func (d *Dispatcher) Cancel(ctx context.Context, id string) error {
	d.mu.Lock()
	cancel, running := d.active[id]
	d.mu.Unlock()

	if running {
		log.Printf("[Dispatcher] Cancelling task %s", id)
		cancel()
		return nil
	}

	_, err := d.store.Update(ctx, id, model.TaskStatusCancelled, nil,
		&model.TaskError{Kind: model.ErrorKindCancelled, Message: "cancelled before execution"})
	if errors.Is(err, taskstore.ErrPersistenceWarning) {
		log.Printf("[Dispatcher] Cancel of task %s persisted to cache only: %v", id, err)
		d.metrics.RecordPersistenceWarning()
		return nil
	}
	return err
}

// Shutdown 优雅关闭
//
// 停止接受提交，取消所有执行中任务，等待执行 goroutine 退出
// 或 ctx 超时。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.baseCancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}

	d.notifier.Close()
	return nil
}

// ============================================================================
// 执行
// ============================================================================

// run 执行单个任务的完整生命周期
func (d *Dispatcher) run(ctx context.Context, task *model.Task, handler Handler) {
	defer d.wg.Done()
	defer d.release(task.ID)

	// 提交后立刻被取消：不进入 running
	if ctx.Err() != nil {
		_, err := d.store.Update(context.Background(), task.ID, model.TaskStatusCancelled, nil,
			&model.TaskError{Kind: model.ErrorKindCancelled, Message: "cancelled before execution"})
		if errors.Is(err, taskstore.ErrPersistenceWarning) {
			d.metrics.RecordPersistenceWarning()
		} else if err != nil {
			log.Printf("[Dispatcher] Failed to cancel pending task %s: %v", task.ID, err)
		}
		return
	}

	// pending → running；已被取消时迁移失败，直接退出
	running, err := d.store.Update(context.Background(), task.ID, model.TaskStatusRunning, nil, nil)
	if errors.Is(err, taskstore.ErrPersistenceWarning) {
		d.metrics.RecordPersistenceWarning()
	} else if err != nil {
		log.Printf("[Dispatcher] Task %s not started: %v", task.ID, err)
		return
	}

	timeout := d.cfg.TimeoutFor(string(task.Type))
	execCtx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	d.metrics.RecordStarted()
	start := time.Now()

	// Handler 在内层 goroutine 执行：超时/取消不等 Handler 返回，
	// 直接行政式写入终态。不响应取消信号的 Handler 迟到的返回值
	// 被丢弃（done 带缓冲，goroutine 不泄漏）。
	type execOutcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan execOutcome, 1)
	go func() {
		res, execErr := handler.Execute(execCtx, running)
		done <- execOutcome{result: res, err: execErr}
	}()

	var status model.TaskStatus
	var result json.RawMessage
	var taskErr *model.TaskError
	select {
	case out := <-done:
		switch {
		case out.err == nil:
			status = model.TaskStatusCompleted
			result = out.result
		case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			status = model.TaskStatusFailed
			taskErr = &model.TaskError{
				Kind:    model.ErrorKindTimeout,
				Message: fmt.Sprintf("execution exceeded %s: %v", timeout, out.err),
			}
		case errors.Is(ctx.Err(), context.Canceled):
			status = model.TaskStatusCancelled
			taskErr = &model.TaskError{Kind: model.ErrorKindCancelled, Message: "cancelled during execution"}
		default:
			status = model.TaskStatusFailed
			taskErr = &model.TaskError{Kind: model.ErrorKindHandler, Message: out.err.Error()}
		}
	case <-execCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			status = model.TaskStatusCancelled
			taskErr = &model.TaskError{Kind: model.ErrorKindCancelled, Message: "cancelled during execution"}
		} else {
			status = model.TaskStatusFailed
			taskErr = &model.TaskError{
				Kind:    model.ErrorKindTimeout,
				Message: fmt.Sprintf("execution exceeded %s, handler did not return", timeout),
			}
		}
	}
	duration := time.Since(start)

	if status == model.TaskStatusCompleted {
		_, err = d.store.Update(context.Background(), task.ID, status, result, nil)
	} else {
		_, err = d.store.Update(context.Background(), task.ID, status, nil, taskErr)
	}
	if errors.Is(err, taskstore.ErrPersistenceWarning) {
		d.metrics.RecordPersistenceWarning()
	} else if err != nil {
		log.Printf("[Dispatcher] Failed to finalize task %s as %s: %v", task.ID, status, err)
	}

	d.metrics.RecordFinished(string(task.Type), string(status), duration)
	log.Printf("[Dispatcher] Task %s finished: %s (%.2fs)", task.ID, status, duration.Seconds())
}

// release 将任务移出执行表
func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	if cancel, ok := d.active[id]; ok {
		delete(d.active, id)
		cancel()
	}
	d.mu.Unlock()
}

// ActiveCount 返回执行中任务数
func (d *Dispatcher) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// generateID 生成带前缀的唯一标识符
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
