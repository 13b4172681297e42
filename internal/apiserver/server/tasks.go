// Package server 任务接口
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"brebot-admin/internal/dispatcher"
	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/taskstore"
)

// SubmitTaskRequest 提交任务的请求体
type SubmitTaskRequest struct {
	Type     string          `json:"type"`
	Input    json.RawMessage `json:"input,omitempty"`
	Owner    string          `json:"owner,omitempty"`
	DedupKey string          `json:"dedup_key,omitempty"`
}

// SubmitTask 提交任务
// POST /api/v1/tasks
//
// 非阻塞：立即返回 pending 记录，Handler 异步执行。
// 携带 dedup_key 且命中既有非终态任务时返回该任务（200 而非 201）。
func (s *Server) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	task, err := s.dispatcher.Submit(r.Context(), dispatcher.SubmitRequest{
		Type:     model.TaskType(req.Type),
		Input:    req.Input,
		Owner:    req.Owner,
		DedupKey: req.DedupKey,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// 幂等端点统一返回 200，避免调用方区分"新建"与"复用"
	status := http.StatusCreated
	if req.DedupKey != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, task)
}

// GetTask 获取任务详情
// GET /api/v1/tasks/{id}
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.dispatcher.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListTasks 列出任务
// GET /api/v1/tasks
//
// 查询参数：
//   - status: 按状态过滤
//   - type: 按类型过滤
//   - owner: 按归属 Bot 过滤
//   - limit: 最大返回条数
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &model.TaskFilter{
		Status: model.TaskStatus(q.Get("status")),
		Type:   model.TaskType(q.Get("type")),
		Owner:  q.Get("owner"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	tasks, err := s.dispatcher.Store().List(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// CancelTask 取消任务
// POST /api/v1/tasks/{id}/cancel
//
// 执行中的任务收到协作取消信号，终态由执行方写入；
// 已终态的任务返回 409。
func (s *Server) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.dispatcher.Cancel(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

// DeleteTask 归档任务
// DELETE /api/v1/tasks/{id}
//
// 归档语义：任务从列表接口消失，持久层记录保留用于审计。
func (s *Server) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.dispatcher.Store().Delete(r.Context(), id); err != nil {
		if errors.Is(err, taskstore.ErrPersistenceWarning) {
			log.Printf("[API] Archive of task %s persisted to cache only: %v", id, err)
		} else {
			writeStoreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":          id,
		"archived_at": time.Now().UTC().Format(time.RFC3339),
	})
}
