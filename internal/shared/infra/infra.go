// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（PostgreSQL / SQLite）
//   - Cache：缓存（Redis），包含 Bot 心跳缓存
//   - ObjStore：对象存储（MinIO，任务产物）
package infra

import (
	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/objstore"
	"brebot-admin/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储（PostgreSQL / SQLite）
	Storage storage.PersistentStore

	// Cache 缓存（Redis），包含 Bot 心跳缓存（BotHeartbeatCache）
	Cache cache.Cache

	// ObjStore 对象存储（MinIO），可为 nil（未配置时产物落盘跳过）
	ObjStore *objstore.Client
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Storage != nil {
		if err := i.Storage.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewMemoryInfrastructure 创建全内存基础设施（用于测试）
func NewMemoryInfrastructure() *Infrastructure {
	return &Infrastructure{
		Cache: cache.NewMemoryCache(),
	}
}
