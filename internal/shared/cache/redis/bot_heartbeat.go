// Package redis Bot 心跳缓存操作
package redis

import (
	"context"
	"strconv"
	"time"

	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/model"
)

// UpdateBotHeartbeat 更新 Bot 心跳
//
// 心跳写入 hash 并设置 TTL；在线集合（online_bots）单独维护，
// 便于 ListOnlineBots 一次取回而无需扫描。
func (s *Store) UpdateBotHeartbeat(ctx context.Context, botID string, status model.BotStatus, healthScore int) error {
	key := cache.KeyBotHeartbeat + botID

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"bot_id":       botID,
		"status":       string(status),
		"health_score": healthScore,
		"updated_at":   time.Now().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, cache.TTLBotHeartbeat)
	if status == model.BotStatusOffline {
		pipe.SRem(ctx, cache.KeyOnlineBots, botID)
	} else {
		pipe.SAdd(ctx, cache.KeyOnlineBots, botID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetBotHeartbeat 读取 Bot 心跳，未命中返回 (nil, nil)
func (s *Store) GetBotHeartbeat(ctx context.Context, botID string) (*cache.BotHeartbeat, error) {
	result, err := s.client.HGetAll(ctx, cache.KeyBotHeartbeat+botID).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	hb := &cache.BotHeartbeat{
		BotID:  result["bot_id"],
		Status: model.BotStatus(result["status"]),
	}
	if score, err := strconv.Atoi(result["health_score"]); err == nil {
		hb.HealthScore = score
	}
	if t, err := time.Parse(time.RFC3339Nano, result["updated_at"]); err == nil {
		hb.UpdatedAt = t
	}
	return hb, nil
}

// DeleteBotHeartbeat 删除 Bot 心跳
func (s *Store) DeleteBotHeartbeat(ctx context.Context, botID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, cache.KeyBotHeartbeat+botID)
	pipe.SRem(ctx, cache.KeyOnlineBots, botID)
	_, err := pipe.Exec(ctx)
	return err
}

// ListOnlineBots 列出在线 Bot ID
//
// 集合成员的心跳 key 可能已过期（进程崩溃未摘除），
// 读取时逐一校验并惰性清理。
func (s *Store) ListOnlineBots(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, cache.KeyOnlineBots).Result()
	if err != nil {
		return nil, err
	}

	var online []string
	for _, botID := range members {
		exists, err := s.client.Exists(ctx, cache.KeyBotHeartbeat+botID).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			s.client.SRem(ctx, cache.KeyOnlineBots, botID)
			continue
		}
		online = append(online, botID)
	}
	return online, nil
}
