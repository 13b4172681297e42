// Package cache 缓存层领域错误
package cache

import "errors"

var (
	// ErrCacheUnavailable 缓存层不可达
	// 替代 redis 连接错误，由调用方决定是否降级到持久层
	ErrCacheUnavailable = errors.New("cache unavailable")
)
