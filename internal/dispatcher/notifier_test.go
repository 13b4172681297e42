package dispatcher

import (
	"testing"

	"brebot-admin/internal/shared/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskEvent(id string, to model.TaskStatus) *model.TaskEvent {
	return &model.TaskEvent{TaskID: id, Type: model.TaskTypeChat, To: to}
}

func TestNotifierFanout(t *testing.T) {
	n := NewNotifier(4)
	defer n.Close()

	ch1, unsub1 := n.Subscribe()
	ch2, unsub2 := n.Subscribe()
	defer unsub1()
	defer unsub2()

	assert.Equal(t, 2, n.Subscribers())

	n.Publish(taskEvent("task-1", model.TaskStatusPending))

	for _, ch := range []<-chan *model.TaskEvent{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, "task-1", e.TaskID)
		default:
			t.Fatal("expected event on subscriber channel")
		}
	}
}

func TestNotifierDropsWhenFull(t *testing.T) {
	n := NewNotifier(2)
	defer n.Close()

	ch, unsub := n.Subscribe()
	defer unsub()

	var dropCallbacks int
	n.OnDrop(func() { dropCallbacks++ })

	// 缓冲 2，发布 5：丢 3
	for i := 0; i < 5; i++ {
		n.Publish(taskEvent("task-x", model.TaskStatusRunning))
	}

	assert.Equal(t, int64(3), n.Dropped())
	assert.Equal(t, 3, dropCallbacks)

	// 通道里只有前两条，Publish 从未阻塞
	count := 0
	for {
		select {
		case <-ch:
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, count)
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(4)
	defer n.Close()

	ch, unsub := n.Subscribe()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, n.Subscribers())

	// 重复取消订阅无副作用
	unsub()

	// 取消后发布不会 panic 也不计为丢弃
	n.Publish(taskEvent("task-y", model.TaskStatusCompleted))
	assert.Equal(t, int64(0), n.Dropped())
}

func TestNotifierClose(t *testing.T) {
	n := NewNotifier(4)
	ch, _ := n.Subscribe()

	n.Close()
	_, open := <-ch
	require.False(t, open)

	// 关闭后订阅得到已关闭通道
	ch2, unsub := n.Subscribe()
	_, open = <-ch2
	assert.False(t, open)
	unsub()

	// 关闭后发布为空操作
	n.Publish(taskEvent("task-z", model.TaskStatusCompleted))
}
