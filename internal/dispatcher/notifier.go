// Package dispatcher 任务事件通知器
package dispatcher

import (
	"log"
	"sync"
	"sync/atomic"

	"brebot-admin/internal/shared/model"
)

// Notifier 任务状态变更事件的进程内扇出
//
// Publish 永不阻塞：订阅方通道满时该订阅方的事件被丢弃并计数
// （at-most-once 投递），慢消费者不能拖慢状态机。订阅方需要强
// 一致视图时通过 TaskStore.List 轮询对账。
type Notifier struct {
	mu      sync.RWMutex
	subs    map[int]chan *model.TaskEvent
	nextID  int
	buffer  int
	closed  bool
	dropped atomic.Int64

	// onDrop 每丢弃一个事件调用一次（可选，用于指标）
	onDrop func()
}

// NewNotifier 创建通知器，buffer 为每个订阅方的通道缓冲
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &Notifier{
		subs:   make(map[int]chan *model.TaskEvent),
		buffer: buffer,
	}
}

// OnDrop 注册丢弃事件回调（启动期调用）
func (n *Notifier) OnDrop(fn func()) {
	n.onDrop = fn
}

// Subscribe 订阅任务事件
//
// 返回只读事件通道和取消订阅函数。取消订阅后通道关闭。
func (n *Notifier) Subscribe() (<-chan *model.TaskEvent, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ch := make(chan *model.TaskEvent)
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	ch := make(chan *model.TaskEvent, n.buffer)
	n.subs[id] = ch

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish 向所有订阅方扇出事件（非阻塞）
func (n *Notifier) Publish(event *model.TaskEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- event:
		default:
			n.dropped.Add(1)
			if n.onDrop != nil {
				n.onDrop()
			}
			log.Printf("[Notifier] Subscriber channel full, dropped event for task %s (%s -> %s)",
				event.TaskID, event.From, event.To)
		}
	}
}

// Dropped 返回累计丢弃的事件数
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Subscribers 返回当前订阅方数量
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Close 关闭通知器，所有订阅通道关闭
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
