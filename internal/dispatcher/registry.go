// Package dispatcher Handler 注册表
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"brebot-admin/internal/shared/model"
)

// Handler 任务执行器接口
//
// 每种任务类型对应一个 Handler。Execute 返回的 JSON 作为任务
// result 写入；返回 error 则任务进入 failed。Handler 必须响应
// ctx 取消（超时和用户取消都通过 ctx 传递）。
type Handler interface {
	// Type 返回该 Handler 负责的任务类型
	Type() model.TaskType

	// Execute 执行任务，返回结果载荷
	Execute(ctx context.Context, task *model.Task) (json.RawMessage, error)
}

// HandlerFunc 函数式 Handler 适配器（主要用于测试）
type HandlerFunc struct {
	TaskType model.TaskType
	Fn       func(ctx context.Context, task *model.Task) (json.RawMessage, error)
}

func (h HandlerFunc) Type() model.TaskType {
	return h.TaskType
}

func (h HandlerFunc) Execute(ctx context.Context, task *model.Task) (json.RawMessage, error) {
	return h.Fn(ctx, task)
}

// Registry 任务类型 → Handler 的注册表
//
// 启动期注册，Freeze 后只读。冻结后的 Get 无锁竞争。
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.TaskType]Handler
	frozen   bool
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.TaskType]Handler)}
}

// Register 注册 Handler
//
// 重复类型返回 ErrDuplicateTaskType，冻结后返回 ErrRegistryFrozen。
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %s", ErrRegistryFrozen, h.Type())
	}
	if !h.Type().IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownTaskType, h.Type())
	}
	if _, exists := r.handlers[h.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTaskType, h.Type())
	}
	r.handlers[h.Type()] = h
	return nil
}

// Freeze 冻结注册表，之后的 Register 调用全部失败
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get 按类型查找 Handler，未注册返回 ErrUnknownTaskType
func (r *Registry) Get(t model.TaskType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, t)
	}
	return h, nil
}

// Types 返回已注册的任务类型（排序后）
func (r *Registry) Types() []model.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.TaskType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
