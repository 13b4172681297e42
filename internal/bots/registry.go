// Package bots Bot 注册表与各任务类型的 Handler 实现
//
// 注册表由持久层 + 心跳缓存组成：描述符（名称、部门、能力）落库，
// 实时状态（在线、健康度）走缓存，读取时以心跳覆盖落库快照。
package bots

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"
)

// Registry Bot 注册表
//
// Bot 永不删除：下线通过 MarkStatus(offline) 表达，历史任务的
// 归属展示因此始终可解析。
type Registry struct {
	store      storage.BotStore
	heartbeats cache.BotHeartbeatCache
}

// NewRegistry 创建 Bot 注册表
func NewRegistry(store storage.BotStore, heartbeats cache.BotHeartbeatCache) *Registry {
	return &Registry{store: store, heartbeats: heartbeats}
}

// Create 注册新 Bot
//
// ID 为空时自动生成；状态默认 offline，健康度默认 100。
func (r *Registry) Create(ctx context.Context, bot *model.Bot) error {
	if bot.ID == "" {
		bot.ID = generateID("bot")
	}
	if bot.Name == "" {
		return fmt.Errorf("bot name is required")
	}
	if bot.Status == "" {
		bot.Status = model.BotStatusOffline
	}
	if bot.HealthScore == 0 {
		bot.HealthScore = 100
	}
	bot.HealthScore = model.ClampHealth(bot.HealthScore)

	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	if err := r.store.CreateBot(ctx, bot); err != nil {
		return fmt.Errorf("create bot %s: %w", bot.ID, err)
	}
	log.Printf("[BotRegistry] Registered bot %s (%s, dept=%s)", bot.ID, bot.Name, bot.Department)
	return nil
}

// Get 读取 Bot，心跳缓存覆盖落库的状态快照
func (r *Registry) Get(ctx context.Context, id string) (*model.Bot, error) {
	bot, err := r.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	r.overlayHeartbeat(ctx, bot)
	return bot, nil
}

// List 列出所有 Bot（含心跳覆盖）
func (r *Registry) List(ctx context.Context) ([]*model.Bot, error) {
	bots, err := r.store.ListBots(ctx)
	if err != nil {
		return nil, err
	}
	for _, bot := range bots {
		r.overlayHeartbeat(ctx, bot)
	}
	return bots, nil
}

// MarkStatus 更新 Bot 状态（双写：持久层 + 心跳缓存）
func (r *Registry) MarkStatus(ctx context.Context, id string, status model.BotStatus) (*model.Bot, error) {
	bot, err := r.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	bot.Status = status
	bot.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateBot(ctx, bot); err != nil {
		return nil, err
	}
	r.touchHeartbeat(ctx, bot)
	return bot, nil
}

// SetHealth 更新健康度评分（收敛到 [0,100]）
func (r *Registry) SetHealth(ctx context.Context, id string, score int) (*model.Bot, error) {
	bot, err := r.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	bot.HealthScore = model.ClampHealth(score)
	bot.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateBot(ctx, bot); err != nil {
		return nil, err
	}
	r.touchHeartbeat(ctx, bot)
	return bot, nil
}

// Heartbeat 记录一次 Bot 心跳（只写缓存，TTL 到期自动离线）
func (r *Registry) Heartbeat(ctx context.Context, id string, status model.BotStatus, healthScore int) error {
	return r.heartbeats.UpdateBotHeartbeat(ctx, id, status, model.ClampHealth(healthScore))
}

// OnlineBots 返回心跳未过期的 Bot ID
func (r *Registry) OnlineBots(ctx context.Context) ([]string, error) {
	return r.heartbeats.ListOnlineBots(ctx)
}

// overlayHeartbeat 用心跳缓存覆盖落库快照（缓存为实时权威）
func (r *Registry) overlayHeartbeat(ctx context.Context, bot *model.Bot) {
	hb, err := r.heartbeats.GetBotHeartbeat(ctx, bot.ID)
	if err != nil {
		log.Printf("[BotRegistry] Heartbeat read failed for %s: %v", bot.ID, err)
		return
	}
	if hb == nil {
		return
	}
	bot.Status = hb.Status
	bot.HealthScore = hb.HealthScore
}

// touchHeartbeat 状态变更后刷新心跳缓存
func (r *Registry) touchHeartbeat(ctx context.Context, bot *model.Bot) {
	if err := r.heartbeats.UpdateBotHeartbeat(ctx, bot.ID, bot.Status, bot.HealthScore); err != nil {
		log.Printf("[BotRegistry] Heartbeat write failed for %s: %v", bot.ID, err)
	}
}

// generateID 生成带前缀的唯一标识符
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
