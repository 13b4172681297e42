// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	cacheredis "brebot-admin/internal/shared/cache/redis"
)

// NewRedisCache 从 URL 创建 Redis 缓存
//
// 启动时 Ping 验证连通性，连接失败视为致命错误由调用方处理。
func NewRedisCache(redisURL string) (*cacheredis.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)

	return cacheredis.NewStoreFromClient(client), nil
}
