// Package dispatcher 调度器领域错误
package dispatcher

import "errors"

var (
	// ErrUnknownTaskType 提交的任务类型没有注册对应的 Handler
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrDuplicateTaskType 同一类型重复注册 Handler
	ErrDuplicateTaskType = errors.New("handler already registered for task type")

	// ErrRegistryFrozen 注册表已冻结（服务启动后不允许再注册）
	ErrRegistryFrozen = errors.New("handler registry is frozen")

	// ErrDispatcherClosed 调度器已关闭，不再接受提交
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
)
