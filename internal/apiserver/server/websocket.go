// Package server WebSocket 事件网关
//
// 事件网关提供实时事件推送能力，支持仪表盘实时监控任务执行。
// 事件来源是调度器的进程内通知器：至多一次投递，断线期间的
// 事件不补发，客户端重连后应先拉取 REST 快照再订阅增量。
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"brebot-admin/internal/dispatcher"
	"brebot-admin/internal/shared/model"
)

// upgrader WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventGateway WebSocket 事件网关
//
// 每个连接独立订阅通知器，慢客户端只丢自己订阅缓冲里的事件，
// 不影响其他连接。
type EventGateway struct {
	notifier *dispatcher.Notifier
	metrics  *Metrics
}

// NewEventGateway 创建事件网关实例
func NewEventGateway(notifier *dispatcher.Notifier) *EventGateway {
	return &EventGateway{notifier: notifier}
}

// SetMetrics 注入 WebSocket 连接指标
func (g *EventGateway) SetMetrics(m *Metrics) {
	g.metrics = m
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/events
//
// 查询参数：
//   - task_id: 只推送指定任务的事件（可选）
//   - type: 只推送指定任务类型的事件（可选）
//
// 推送消息格式：
//
//	事件消息：{"type": "event", "data": {...}}
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *EventGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	taskType := model.TaskType(r.URL.Query().Get("type"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := g.notifier.Subscribe()
	defer unsubscribe()

	if g.metrics != nil {
		g.metrics.WSConnectionOpened()
		defer g.metrics.WSConnectionClosed()
	}
	log.Printf("WebSocket client connected (task_id=%q, type=%q)", taskID, taskType)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 所有写操作集中在 writePump（gorilla 连接不允许并发写），
	// readPump 通过 pongs 通道转交心跳响应
	pongs := make(chan struct{}, 1)
	go g.readPump(conn, pongs, cancel)
	g.writePump(ctx, conn, events, pongs, taskID, taskType)
}

// readPump 读取客户端消息
//
// 在独立 goroutine 中运行，处理客户端发送的消息：
//   - 心跳消息（ping）：经 pongs 通道交给 writePump 响应
//   - 连接关闭：取消上下文
func (g *EventGateway) readPump(conn *websocket.Conn, pongs chan<- struct{}, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil {
			if req["type"] == "ping" {
				select {
				case pongs <- struct{}{}:
				default: // 上一个 pong 还没发出，合并
				}
			}
		}
	}
}

// writePump 向客户端推送事件
//
// 主循环处理事件推送：
//   - 从订阅通道取事件，按 task_id/type 过滤后推送
//   - 每 30s 发送 ping 保持连接
//   - 订阅通道关闭（调度器停机）时退出
func (g *EventGateway) writePump(ctx context.Context, conn *websocket.Conn, events <-chan *model.TaskEvent, pongs <-chan struct{}, taskID string, taskType model.TaskType) {
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-pongs:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				return
			}
			if g.metrics != nil {
				g.metrics.RecordWSMessage("out", "pong")
			}
		case event, ok := <-events:
			if !ok {
				conn.WriteJSON(map[string]string{"type": "status", "data": "shutdown"})
				return
			}
			if taskID != "" && event.TaskID != taskID {
				continue
			}
			if taskType != "" && event.Type != taskType {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(map[string]interface{}{
				"type": "event",
				"data": event,
			}); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
			if g.metrics != nil {
				g.metrics.RecordWSMessage("out", "event")
			}
		}
	}
}
