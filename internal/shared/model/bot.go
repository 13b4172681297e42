// Package model 定义核心数据模型
//
// bot.go 包含 Bot 相关的数据模型定义：
//   - Bot：Bot 描述符（部门、能力、健康度）
//   - BotStatus：Bot 状态枚举
package model

import (
	"time"
)

// ============================================================================
// BotStatus - Bot 状态枚举
// ============================================================================

// BotStatus Bot 的在线状态
//
// Bot 永不删除，下线仅标记为 offline（保留历史任务的归属展示）。
type BotStatus string

const (
	// BotStatusOnline 在线：可接收任务
	BotStatusOnline BotStatus = "online"

	// BotStatusBusy 忙碌：正在处理任务
	BotStatusBusy BotStatus = "busy"

	// BotStatusOffline 离线：不再接收任务
	BotStatusOffline BotStatus = "offline"
)

// IsValid 判断是否为合法状态
func (s BotStatus) IsValid() bool {
	switch s {
	case BotStatusOnline, BotStatusBusy, BotStatusOffline:
		return true
	}
	return false
}

// ============================================================================
// Bot - Bot 描述符
// ============================================================================

// Bot 表示一个可被调度的 Bot
//
// 生命周期：
//   - 由配置或 Bot Architect 创建
//   - 健康检查和任务完成回调更新 Status/HealthScore
//   - 永不删除，只标记 offline
type Bot struct {
	// ID Bot 唯一标识
	ID string `json:"id" db:"id"`

	// Name 显示名称
	Name string `json:"name" db:"name"`

	// Department 所属部门（如 marketing、operations）
	Department string `json:"department,omitempty" db:"department"`

	// Capabilities 工具能力集合（工具名列表）
	Capabilities []string `json:"capabilities,omitempty" db:"capabilities"`

	// Status 在线状态
	Status BotStatus `json:"status" db:"status"`

	// HealthScore 健康度评分 0-100
	HealthScore int `json:"health_score" db:"health_score"`

	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt 最近一次状态变更时间
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasCapability 判断 Bot 是否具备指定能力
func (b *Bot) HasCapability(name string) bool {
	for _, c := range b.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// ClampHealth 将健康度收敛到 [0, 100]
func ClampHealth(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
