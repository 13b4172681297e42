// Package server Bot 接口
package server

import (
	"encoding/json"
	"net/http"

	"brebot-admin/internal/bots"
	"brebot-admin/internal/dispatcher"
	"brebot-admin/internal/shared/model"
)

// CreateBotRequest 注册 Bot 的请求体
type CreateBotRequest struct {
	Name         string   `json:"name"`
	Department   string   `json:"department,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// CreateBot 注册 Bot
// POST /api/v1/bots
func (s *Server) CreateBot(w http.ResponseWriter, r *http.Request) {
	var req CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	bot := &model.Bot{
		Name:         req.Name,
		Department:   req.Department,
		Capabilities: req.Capabilities,
	}
	if err := s.bots.Create(r.Context(), bot); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

// GetBot 获取 Bot 详情（含心跳覆盖后的实时状态）
// GET /api/v1/bots/{id}
func (s *Server) GetBot(w http.ResponseWriter, r *http.Request) {
	bot, err := s.bots.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

// ListBots 列出所有 Bot
// GET /api/v1/bots
func (s *Server) ListBots(w http.ResponseWriter, r *http.Request) {
	list, err := s.bots.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []*model.Bot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bots":  list,
		"count": len(list),
	})
}

// BotHeartbeatRequest Bot 心跳上报请求体
type BotHeartbeatRequest struct {
	Status      string `json:"status"`
	HealthScore int    `json:"health_score"`
}

// BotHeartbeat Bot 心跳上报
// POST /api/v1/bots/{id}/heartbeat
//
// 只写心跳缓存，TTL 到期后 Bot 自动回落为离线。
func (s *Server) BotHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req BotHeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := model.BotStatus(req.Status)
	if status == "" {
		status = model.BotStatusOnline
	}
	if !status.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid bot status")
		return
	}

	// 心跳前确认 Bot 已注册
	if _, err := s.bots.Get(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.bots.Heartbeat(r.Context(), id, status, req.HealthScore); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
}

// BotCommandRequest 对 Bot 下发指令的请求体
type BotCommandRequest struct {
	Command     string `json:"command"`
	HealthScore int    `json:"health_score,omitempty"`
}

// BotCommand 对 Bot 下发指令
// POST /api/v1/bots/{id}/command
//
// 指令以 bot_command 任务入队，经调度器异步执行，
// 返回 pending 任务记录供调用方跟踪。
func (s *Server) BotCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req BotCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	input, err := json.Marshal(bots.BotCommandInput{
		BotID:       id,
		Command:     req.Command,
		HealthScore: req.HealthScore,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	task, err := s.dispatcher.Submit(r.Context(), dispatcher.SubmitRequest{
		Type:  model.TaskTypeBotCommand,
		Input: input,
		Owner: id,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}
