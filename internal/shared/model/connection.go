// Package model 定义核心数据模型
//
// connection.go 包含外部服务连接相关的数据模型定义：
//   - Connection：外部服务连接描述符（凭据状态）
//   - ConnectionStatus：连接状态枚举
package model

import (
	"time"
)

// ============================================================================
// ConnectionStatus - 连接状态枚举
// ============================================================================

// ConnectionStatus 外部服务连接的状态
//
// 状态机：
//
//	disconnected ──→ connecting ──→ connected
//	                     │              ├──→ expired
//	                     └──→ error     └──→ error
//
// OAuth 流程本身在系统边界之外，本系统只记录边缘上报的状态。
type ConnectionStatus string

const (
	// ConnectionStatusDisconnected 未连接
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"

	// ConnectionStatusConnecting 连接中（OAuth 回调未完成）
	ConnectionStatusConnecting ConnectionStatus = "connecting"

	// ConnectionStatusConnected 已连接
	ConnectionStatusConnected ConnectionStatus = "connected"

	// ConnectionStatusError 连接出错
	ConnectionStatusError ConnectionStatus = "error"

	// ConnectionStatusExpired 凭据过期，需要重新授权
	ConnectionStatusExpired ConnectionStatus = "expired"
)

// CanTransitionTo 判断连接状态能否迁移到目标状态
func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	switch s {
	case ConnectionStatusDisconnected:
		return next == ConnectionStatusConnecting
	case ConnectionStatusConnecting:
		return next == ConnectionStatusConnected || next == ConnectionStatusError
	case ConnectionStatusConnected:
		return next == ConnectionStatusExpired || next == ConnectionStatusError
	case ConnectionStatusError, ConnectionStatusExpired:
		return next == ConnectionStatusConnecting
	default:
		return false
	}
}

// ============================================================================
// Connection - 外部服务连接描述符
// ============================================================================

// Connection 表示一个外部 SaaS 服务的连接状态
//
// 生命周期：
//   - 首次配置时创建（disconnected）
//   - OAuth 回调驱动状态迁移
//   - 显式断开时删除
type Connection struct {
	// ID 连接唯一标识
	ID string `json:"id" db:"id"`

	// Service 服务名（如 dropbox、etsy、printify、n8n、shopify）
	Service string `json:"service" db:"service"`

	// Status 连接状态
	Status ConnectionStatus `json:"status" db:"status"`

	// Scopes 已授权的权限范围
	Scopes []string `json:"scopes,omitempty" db:"scopes"`

	// IngestionEnabled 是否允许摄取任务读取该服务的数据
	IngestionEnabled bool `json:"ingestion_enabled" db:"ingestion_enabled"`

	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt 最近一次状态变更时间
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
