// Package server 提供管理面 HTTP API
//
// 本包实现 Bot 管理系统的 RESTful API，包括：
//   - 任务提交与状态查询（Task）接口
//   - Bot 注册表（Bot）接口
//   - 外部服务连接（Connection）接口
//   - WebSocket 实时事件推送
//
// 文件组织：
//   - common.go: 通用工具函数和 Server 定义
//   - handler.go: 路由配置
//   - tasks.go: 任务相关接口
//   - bots.go: Bot 相关接口
//   - connections.go: 连接相关接口
//   - websocket.go: WebSocket 事件网关
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"brebot-admin/internal/apiserver/auth"
	"brebot-admin/internal/bots"
	"brebot-admin/internal/connections"
	"brebot-admin/internal/dispatcher"
	"brebot-admin/internal/shared/storage"
	"brebot-admin/internal/taskstore"
)

// Server 管理面 API 服务器
//
// Server 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的处理函数
//   - 将提交/取消转发给任务调度器
//   - 协调 WebSocket 事件网关
type Server struct {
	dispatcher  *dispatcher.Dispatcher
	bots        *bots.Registry
	connections *connections.Registry
	authConfig  auth.Config

	gateway *EventGateway
	metrics *Metrics
}

// NewServer 创建 Server 实例
func NewServer(d *dispatcher.Dispatcher, botRegistry *bots.Registry, connRegistry *connections.Registry, authCfg auth.Config) *Server {
	s := &Server{
		dispatcher:  d,
		bots:        botRegistry,
		connections: connRegistry,
		authConfig:  authCfg,
	}
	s.metrics = NewMetrics("api")
	s.gateway = NewEventGateway(d.Notifier())
	s.gateway.SetMetrics(s.metrics)
	return s
}

// GetMetrics 返回指标实例
func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError 将存储/调度错误映射为 HTTP 状态码
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, taskstore.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatcher.ErrUnknownTaskType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatcher.ErrDispatcherClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, connections.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Health 健康检查接口
//
// 路由: GET /healthz
//
// 用于负载均衡器和监控系统检查服务状态。
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"active_tasks": s.dispatcher.ActiveCount(),
	})
}
