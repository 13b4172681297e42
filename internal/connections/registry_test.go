package connections

import (
	"context"
	"sync"
	"testing"

	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConnStore 内存连接持久层（测试用）
type memConnStore struct {
	mu    sync.Mutex
	conns map[string]*model.Connection
}

var _ storage.ConnectionStore = (*memConnStore)(nil)

func newMemConnStore() *memConnStore {
	return &memConnStore{conns: make(map[string]*model.Connection)}
}

func (m *memConnStore) CreateConnection(ctx context.Context, conn *model.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[conn.ID]; ok {
		return storage.ErrDuplicate
	}
	cp := *conn
	m.conns[conn.ID] = &cp
	return nil
}

func (m *memConnStore) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

func (m *memConnStore) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[conn.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *conn
	m.conns[conn.ID] = &cp
	return nil
}

func (m *memConnStore) ListConnections(ctx context.Context) ([]*model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Connection
	for _, conn := range m.conns {
		cp := *conn
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memConnStore) DeleteConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.conns, id)
	return nil
}

func TestConnectionCreateDefaults(t *testing.T) {
	r := NewRegistry(newMemConnStore())
	ctx := context.Background()

	conn := &model.Connection{Service: "dropbox", Status: model.ConnectionStatusConnected}
	require.NoError(t, r.Create(ctx, conn))
	assert.NotEmpty(t, conn.ID)
	// 初始状态强制 disconnected，调用方无法跳过授权流程
	assert.Equal(t, model.ConnectionStatusDisconnected, conn.Status)

	assert.Error(t, r.Create(ctx, &model.Connection{}))
}

func TestConnectionStatusLifecycle(t *testing.T) {
	r := NewRegistry(newMemConnStore())
	ctx := context.Background()

	conn := &model.Connection{ID: "conn-etsy", Service: "etsy"}
	require.NoError(t, r.Create(ctx, conn))

	// disconnected -> connecting -> connected（带 scopes）
	got, err := r.UpdateStatus(ctx, "conn-etsy", model.ConnectionStatusConnecting, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusConnecting, got.Status)

	got, err = r.UpdateStatus(ctx, "conn-etsy", model.ConnectionStatusConnected, []string{"listings:read", "orders:read"})
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusConnected, got.Status)
	assert.Equal(t, []string{"listings:read", "orders:read"}, got.Scopes)

	// connected -> connecting 非法
	_, err = r.UpdateStatus(ctx, "conn-etsy", model.ConnectionStatusConnecting, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// connected -> expired -> connecting 合法（重授权）
	_, err = r.UpdateStatus(ctx, "conn-etsy", model.ConnectionStatusExpired, nil)
	require.NoError(t, err)
	got, err = r.UpdateStatus(ctx, "conn-etsy", model.ConnectionStatusConnecting, nil)
	require.NoError(t, err)
	// scopes 传 nil 时保留原值
	assert.Equal(t, []string{"listings:read", "orders:read"}, got.Scopes)
}

func TestConnectionSetIngestion(t *testing.T) {
	r := NewRegistry(newMemConnStore())
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &model.Connection{ID: "conn-dbx", Service: "dropbox"}))

	got, err := r.SetIngestion(ctx, "conn-dbx", true)
	require.NoError(t, err)
	assert.True(t, got.IngestionEnabled)

	got, err = r.SetIngestion(ctx, "conn-dbx", false)
	require.NoError(t, err)
	assert.False(t, got.IngestionEnabled)
}

func TestConnectionDisconnect(t *testing.T) {
	r := NewRegistry(newMemConnStore())
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &model.Connection{ID: "conn-x", Service: "shopify"}))
	require.NoError(t, r.Disconnect(ctx, "conn-x"))

	_, err := r.Get(ctx, "conn-x")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, r.Disconnect(ctx, "ghost"), storage.ErrNotFound)
}
