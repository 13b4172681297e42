// Package server 连接接口
package server

import (
	"encoding/json"
	"net/http"

	"brebot-admin/internal/shared/model"
)

// CreateConnectionRequest 登记连接的请求体
type CreateConnectionRequest struct {
	Service string `json:"service"`
}

// CreateConnection 登记连接
// POST /api/v1/connections
//
// 初始状态固定为 disconnected，授权流程通过状态接口推进。
func (s *Server) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Service == "" {
		writeError(w, http.StatusBadRequest, "service is required")
		return
	}

	conn := &model.Connection{Service: req.Service}
	if err := s.connections.Create(r.Context(), conn); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// GetConnection 获取连接详情
// GET /api/v1/connections/{id}
func (s *Server) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.connections.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// ListConnections 列出所有连接
// GET /api/v1/connections
func (s *Server) ListConnections(w http.ResponseWriter, r *http.Request) {
	list, err := s.connections.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if list == nil {
		list = []*model.Connection{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connections": list,
		"count":       len(list),
	})
}

// UpdateConnectionStatusRequest 状态推进请求体
type UpdateConnectionStatusRequest struct {
	Status string   `json:"status"`
	Scopes []string `json:"scopes,omitempty"`
}

// UpdateConnectionStatus 推进连接状态
// PUT /api/v1/connections/{id}/status
//
// 迁移必须被状态机允许，非法迁移返回 409。
func (s *Server) UpdateConnectionStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateConnectionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	conn, err := s.connections.UpdateStatus(r.Context(), r.PathValue("id"),
		model.ConnectionStatus(req.Status), req.Scopes)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// SetConnectionIngestionRequest 摄取开关请求体
type SetConnectionIngestionRequest struct {
	Enabled bool `json:"enabled"`
}

// SetConnectionIngestion 开关摄取权限
// PUT /api/v1/connections/{id}/ingestion
func (s *Server) SetConnectionIngestion(w http.ResponseWriter, r *http.Request) {
	var req SetConnectionIngestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conn, err := s.connections.SetIngestion(r.Context(), r.PathValue("id"), req.Enabled)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// DeleteConnection 断开并删除连接
// DELETE /api/v1/connections/{id}
func (s *Server) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.connections.Disconnect(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "disconnected"})
}
