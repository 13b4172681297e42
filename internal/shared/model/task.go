// Package model 定义核心数据模型
//
// task.go 包含任务相关的数据模型定义：
//   - Task：一次调度的工作单元（包含完整生命周期状态）
//   - TaskType：任务类型枚举（决定由哪个 Handler 执行）
//   - TaskStatus：任务状态枚举
//   - TaskError：结构化任务错误（kind + message）
//
// 注意：Bot/Connection 模型位于 bot.go / connection.go
package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// TaskType - 任务类型枚举
// ============================================================================

// TaskType 任务类型，决定任务由哪个 Handler 执行
type TaskType string

const (
	// TaskTypeChat 聊天任务：调用本地 LLM 运行时生成回复
	TaskTypeChat TaskType = "chat"

	// TaskTypeFileOrganize 文件整理任务：扫描目录并按规则归类文件
	TaskTypeFileOrganize TaskType = "file_organize"

	// TaskTypePipelineStep 流水线步骤：触发外部工作流（n8n Webhook）
	TaskTypePipelineStep TaskType = "pipeline_step"

	// TaskTypeBotCommand Bot 指令：对 Bot 注册表执行结构化命令
	TaskTypeBotCommand TaskType = "bot_command"

	// TaskTypeIngestionRun 摄取任务：批量导入聊天历史等外部数据
	TaskTypeIngestionRun TaskType = "ingestion_run"
)

// ValidTaskTypes 所有合法的任务类型
var ValidTaskTypes = []TaskType{
	TaskTypeChat,
	TaskTypeFileOrganize,
	TaskTypePipelineStep,
	TaskTypeBotCommand,
	TaskTypeIngestionRun,
}

// IsValid 判断任务类型是否合法
func (t TaskType) IsValid() bool {
	for _, v := range ValidTaskTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ============================================================================
// TaskStatus - 任务状态
// ============================================================================

// TaskStatus 表示任务的生命周期状态
//
// 状态机（单向，终态吸收）：
//
//	pending ──→ running ──→ completed
//	   │           ├──────→ failed
//	   │           └──────→ cancelled
//	   └──────────────────→ cancelled
//
// 约束：
//   - 不存在 running → pending 的回退（失败即终态，重试 = 新任务）
//   - 终态（completed/failed/cancelled）之后不允许任何状态变更
type TaskStatus string

const (
	// TaskStatusPending 待处理：任务已创建，等待 Handler 执行
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning 执行中：Handler 正在处理
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted 已完成：Handler 成功返回，result 已写入
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed 已失败：Handler 出错或超时，error 已写入
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled 已取消：用户主动取消（副作用不回滚）
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal 判断是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// CanTransitionTo 判断能否从当前状态迁移到目标状态
//
// 迁移规则表：
//   - pending → running / cancelled
//   - running → completed / failed / cancelled
//   - 终态 → 无
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed || next == TaskStatusCancelled
	default:
		return false
	}
}

// ============================================================================
// TaskError - 结构化任务错误
// ============================================================================

// ErrorKind 错误分类
type ErrorKind string

const (
	// ErrorKindHandler Handler 执行出错
	ErrorKindHandler ErrorKind = "HandlerError"

	// ErrorKindTimeout Handler 执行超时
	ErrorKindTimeout ErrorKind = "Timeout"

	// ErrorKindCancelled 任务被取消
	ErrorKindCancelled ErrorKind = "Cancelled"
)

// TaskError 任务失败时记录的结构化错误
//
// Kind 用于前端分类展示和程序判断，Message 保留底层错误原文。
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ============================================================================
// Task - 调度工作单元
// ============================================================================

// Task 表示一次被调度的工作单元
//
// Task 由 Dispatcher 创建并独占写入，生命周期见 TaskStatus。
// Input/Result 在存储层保持为原始 JSON，各 Handler 在调用边界
// 解码为自己的强类型载荷（序列化边界只存在于系统边缘）。
//
// 字段分组：
//  1. 基础字段：ID, Type, Status
//  2. 载荷字段：Input, Result, Error（Result/Error 一次写入）
//  3. 路由字段：Owner, DedupKey
//  4. 并发控制：Version（每次状态变更 +1，用于 CAS）
//  5. 时间戳：CreatedAt, UpdatedAt
type Task struct {
	// ID 任务唯一标识，创建时分配，不可变
	ID string `json:"id" db:"id"`

	// Type 任务类型，决定执行的 Handler
	Type TaskType `json:"type" db:"type"`

	// Status 生命周期状态
	Status TaskStatus `json:"status" db:"status"`

	// Input 任务输入载荷（原始 JSON，由 Handler 校验）
	Input json.RawMessage `json:"input,omitempty" db:"input"`

	// Result 执行结果，仅 status=completed 时非空，写入一次后不可变
	Result json.RawMessage `json:"result,omitempty" db:"result"`

	// Error 执行错误，仅 status=failed/cancelled 时非空，写入一次后不可变
	Error *TaskError `json:"error,omitempty" db:"error"`

	// Owner 处理该任务的 Bot/Agent ID（可选，用于路由和展示）
	Owner string `json:"owner,omitempty" db:"owner"`

	// DedupKey 幂等提交键（可选）：存在非终态同键任务时复用其 ID
	DedupKey string `json:"dedup_key,omitempty" db:"dedup_key"`

	// Version 乐观锁版本号，每次状态变更递增
	Version int64 `json:"version" db:"version"`

	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt 最近一次状态变更时间
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal 判断任务是否已进入终态
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Clone 返回任务的深拷贝（Input/Result 共享底层字节，二者只读）
func (t *Task) Clone() *Task {
	cp := *t
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	return &cp
}

// ============================================================================
// TaskFilter - 任务查询过滤条件
// ============================================================================

// TaskFilter 任务列表的过滤条件，零值字段表示不过滤
type TaskFilter struct {
	// Status 按状态过滤
	Status TaskStatus

	// Type 按类型过滤
	Type TaskType

	// Owner 按归属 Bot 过滤
	Owner string

	// CreatedAfter / CreatedBefore 按创建时间范围过滤
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// Limit 返回数量上限，0 表示不限制
	Limit int
}

// Matches 判断任务是否满足过滤条件
func (f *TaskFilter) Matches(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Owner != "" && t.Owner != f.Owner {
		return false
	}
	if !f.CreatedAfter.IsZero() && t.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && t.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	return true
}
