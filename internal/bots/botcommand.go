// Package bots bot_command 任务 Handler
package bots

import (
	"context"
	"encoding/json"
	"fmt"

	"brebot-admin/internal/shared/model"
)

// Bot 指令
const (
	CommandMarkOnline  = "mark_online"
	CommandMarkBusy    = "mark_busy"
	CommandMarkOffline = "mark_offline"
	CommandSetHealth   = "set_health"
)

// BotCommandInput bot_command 任务输入载荷
type BotCommandInput struct {
	// BotID 目标 Bot
	BotID string `json:"bot_id"`

	// Command 指令名：mark_online / mark_busy / mark_offline / set_health
	Command string `json:"command"`

	// HealthScore set_health 指令的评分参数
	HealthScore int `json:"health_score,omitempty"`
}

// BotCommandResult bot_command 任务结果载荷：执行后的 Bot 快照
type BotCommandResult struct {
	Bot     *model.Bot `json:"bot"`
	Command string     `json:"command"`
}

// BotCommandHandler 对 Bot 注册表执行结构化指令
type BotCommandHandler struct {
	registry *Registry
}

// NewBotCommandHandler 创建 bot_command Handler
func NewBotCommandHandler(registry *Registry) *BotCommandHandler {
	return &BotCommandHandler{registry: registry}
}

func (h *BotCommandHandler) Type() model.TaskType {
	return model.TaskTypeBotCommand
}

func (h *BotCommandHandler) Execute(ctx context.Context, task *model.Task) (json.RawMessage, error) {
	var input BotCommandInput
	if err := json.Unmarshal(task.Input, &input); err != nil {
		return nil, fmt.Errorf("invalid bot_command input: %w", err)
	}
	if input.BotID == "" {
		return nil, fmt.Errorf("bot_command input requires a bot_id")
	}

	var bot *model.Bot
	var err error
	switch input.Command {
	case CommandMarkOnline:
		bot, err = h.registry.MarkStatus(ctx, input.BotID, model.BotStatusOnline)
	case CommandMarkBusy:
		bot, err = h.registry.MarkStatus(ctx, input.BotID, model.BotStatusBusy)
	case CommandMarkOffline:
		bot, err = h.registry.MarkStatus(ctx, input.BotID, model.BotStatusOffline)
	case CommandSetHealth:
		bot, err = h.registry.SetHealth(ctx, input.BotID, input.HealthScore)
	default:
		return nil, fmt.Errorf("unknown bot command: %s", input.Command)
	}
	if err != nil {
		return nil, fmt.Errorf("command %s on bot %s: %w", input.Command, input.BotID, err)
	}

	return json.Marshal(BotCommandResult{Bot: bot, Command: input.Command})
}
