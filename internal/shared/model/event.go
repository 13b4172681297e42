// Package model 定义核心数据模型
//
// event.go 包含任务状态变更事件的定义：
//   - TaskEvent：状态变更事件（Notifier 扇出 / WebSocket 推送）
package model

import (
	"time"
)

// ============================================================================
// TaskEvent - 任务状态变更事件
// ============================================================================

// TaskEvent 表示一次任务状态变更
//
// 数据流：
//
//	TaskStore.Update → Notifier.Publish → WebSocket 客户端
//	                                    → MCP 轮询方（不依赖事件，轮询 Get）
//
// 投递语义为 at-most-once：订阅方通道满时事件被丢弃，
// 订阅方通过周期性轮询 TaskStore.List 自行对账。
type TaskEvent struct {
	// TaskID 任务 ID
	TaskID string `json:"task_id"`

	// Type 任务类型
	Type TaskType `json:"type"`

	// From 变更前状态（创建事件时为空）
	From TaskStatus `json:"from,omitempty"`

	// To 变更后状态
	To TaskStatus `json:"to"`

	// Owner 任务归属 Bot
	Owner string `json:"owner,omitempty"`

	// Error 失败时附带的错误（仅 To=failed/cancelled）
	Error *TaskError `json:"error,omitempty"`

	// Timestamp 事件发生时间
	Timestamp time.Time `json:"timestamp"`
}
