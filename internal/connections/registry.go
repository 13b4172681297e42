// Package connections 外部服务连接注册表
//
// 连接描述符只记录凭据状态与授权范围，凭据本体由各服务的
// OAuth 流程托管，不落库。状态迁移受 ConnectionStatus 状态机约束。
package connections

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"
)

// ErrInvalidTransition 连接状态迁移不被状态机允许
var ErrInvalidTransition = fmt.Errorf("invalid connection status transition")

// Registry 连接注册表
type Registry struct {
	store storage.ConnectionStore
}

// NewRegistry 创建连接注册表
func NewRegistry(store storage.ConnectionStore) *Registry {
	return &Registry{store: store}
}

// Create 登记新连接
//
// ID 为空时自动生成；初始状态固定为 disconnected。
func (r *Registry) Create(ctx context.Context, conn *model.Connection) error {
	if conn.Service == "" {
		return fmt.Errorf("connection service is required")
	}
	if conn.ID == "" {
		conn.ID = generateID("conn")
	}
	conn.Status = model.ConnectionStatusDisconnected

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	if err := r.store.CreateConnection(ctx, conn); err != nil {
		return fmt.Errorf("create connection %s: %w", conn.ID, err)
	}
	log.Printf("[ConnRegistry] Registered connection %s (service=%s)", conn.ID, conn.Service)
	return nil
}

// Get 读取连接
func (r *Registry) Get(ctx context.Context, id string) (*model.Connection, error) {
	return r.store.GetConnection(ctx, id)
}

// List 列出所有连接
func (r *Registry) List(ctx context.Context) ([]*model.Connection, error) {
	return r.store.ListConnections(ctx)
}

// UpdateStatus 推进连接状态
//
// 迁移必须被状态机允许，否则返回 ErrInvalidTransition。
// 授权完成时可同时更新 scopes（nil 表示不变）。
func (r *Registry) UpdateStatus(ctx context.Context, id string, next model.ConnectionStatus, scopes []string) (*model.Connection, error) {
	conn, err := r.store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conn.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conn.Status, next)
	}

	conn.Status = next
	if scopes != nil {
		conn.Scopes = scopes
	}
	conn.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdateConnection(ctx, conn); err != nil {
		return nil, err
	}
	log.Printf("[ConnRegistry] Connection %s -> %s", id, next)
	return conn, nil
}

// SetIngestion 开关摄取任务对该连接的读取权限
func (r *Registry) SetIngestion(ctx context.Context, id string, enabled bool) (*model.Connection, error) {
	conn, err := r.store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	conn.IngestionEnabled = enabled
	conn.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdateConnection(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Disconnect 显式断开并删除连接记录
//
// 与任务不同，连接删除是物理删除：凭据状态没有审计价值。
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	if err := r.store.DeleteConnection(ctx, id); err != nil {
		return err
	}
	log.Printf("[ConnRegistry] Connection %s disconnected and removed", id)
	return nil
}

// generateID 生成带前缀的唯一标识符
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
