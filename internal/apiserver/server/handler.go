// Package server 路由配置
package server

import (
	"net/http"

	"brebot-admin/internal/apiserver/auth"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /healthz - 服务健康检查
//
// 任务管理 (Task):
//   - GET    /api/v1/tasks                - 列出任务
//   - POST   /api/v1/tasks                - 提交任务
//   - GET    /api/v1/tasks/{id}           - 获取任务详情
//   - POST   /api/v1/tasks/{id}/cancel    - 取消任务
//   - DELETE /api/v1/tasks/{id}           - 归档任务
//
// Bot 管理 (Bot):
//   - GET    /api/v1/bots                 - 列出 Bot
//   - POST   /api/v1/bots                 - 注册 Bot
//   - GET    /api/v1/bots/{id}            - 获取 Bot 详情
//   - POST   /api/v1/bots/{id}/heartbeat  - Bot 心跳上报
//   - POST   /api/v1/bots/{id}/command    - 对 Bot 下发指令（经调度器）
//
// 连接管理 (Connection):
//   - GET    /api/v1/connections               - 列出连接
//   - POST   /api/v1/connections               - 登记连接
//   - GET    /api/v1/connections/{id}          - 获取连接详情
//   - PUT    /api/v1/connections/{id}/status   - 推进连接状态
//   - PUT    /api/v1/connections/{id}/ingestion - 开关摄取权限
//   - DELETE /api/v1/connections/{id}          - 断开并删除连接
//
// WebSocket:
//   - GET    /ws/events                   - 实时任务事件推送
//   - GET    /api/v1/events/ws            - 同上（别名）
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /healthz", s.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Task 接口
	mux.HandleFunc("GET /api/v1/tasks", s.ListTasks)
	mux.HandleFunc("POST /api/v1/tasks", s.SubmitTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.GetTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/cancel", s.CancelTask)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", s.DeleteTask)

	// Bot 接口
	mux.HandleFunc("GET /api/v1/bots", s.ListBots)
	mux.HandleFunc("POST /api/v1/bots", s.CreateBot)
	mux.HandleFunc("GET /api/v1/bots/{id}", s.GetBot)
	mux.HandleFunc("POST /api/v1/bots/{id}/heartbeat", s.BotHeartbeat)
	mux.HandleFunc("POST /api/v1/bots/{id}/command", s.BotCommand)

	// Connection 接口
	mux.HandleFunc("GET /api/v1/connections", s.ListConnections)
	mux.HandleFunc("POST /api/v1/connections", s.CreateConnection)
	mux.HandleFunc("GET /api/v1/connections/{id}", s.GetConnection)
	mux.HandleFunc("PUT /api/v1/connections/{id}/status", s.UpdateConnectionStatus)
	mux.HandleFunc("PUT /api/v1/connections/{id}/ingestion", s.SetConnectionIngestion)
	mux.HandleFunc("DELETE /api/v1/connections/{id}", s.DeleteConnection)

	// 应用指标中间件到 REST API
	apiHandler := s.metrics.MetricsMiddleware(mux)

	// 应用认证中间件
	authedHandler := auth.Middleware(s.authConfig)(apiHandler)

	// 应用 CORS 中间件
	corsHandler := corsMiddleware(authedHandler)

	// 顶层路由：WebSocket 绕过 metrics 中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/events", s.gateway.HandleWebSocket)
	topMux.HandleFunc("GET /api/v1/events/ws", s.gateway.HandleWebSocket)
	topMux.Handle("/", corsHandler)

	return topMux
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
