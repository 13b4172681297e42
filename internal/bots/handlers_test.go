package bots

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskWithInput(t *testing.T, taskType model.TaskType, input interface{}) *model.Task {
	t.Helper()
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	return &model.Task{ID: "task-test", Type: taskType, Input: raw}
}

// ============================================================================
// ChatHandler
// ============================================================================

func TestChatHandlerExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3.1", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":   "llama3.1",
			"message": map[string]string{"role": "assistant", "content": "hello back"},
		})
	}))
	defer srv.Close()

	h := NewChatHandler(srv.URL, "llama3.1")
	assert.Equal(t, model.TaskTypeChat, h.Type())

	raw, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeChat, ChatInput{Message: "hi"}))
	require.NoError(t, err)

	var result ChatResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "hello back", result.Reply)
	assert.Equal(t, "llama3.1", result.Model)
}

func TestChatHandlerEmptyMessage(t *testing.T) {
	h := NewChatHandler("http://localhost:0", "llama3.1")
	_, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeChat, ChatInput{}))
	assert.Error(t, err)
}

func TestChatHandlerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewChatHandler(srv.URL, "llama3.1")
	_, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeChat, ChatInput{Message: "hi"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestChatHandlerRespectsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	h := NewChatHandler(srv.URL, "llama3.1")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.Execute(ctx, taskWithInput(t, model.TaskTypeChat, ChatInput{Message: "hi"}))
	assert.Error(t, err)
}

// ============================================================================
// PipelineHandler
// ============================================================================

func TestPipelineHandlerExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/order-sync", r.URL.Path)
		body, _ := json.Marshal(map[string]string{"status": "queued"})
		w.Write(body)
	}))
	defer srv.Close()

	h := NewPipelineHandler(srv.URL)
	assert.Equal(t, model.TaskTypePipelineStep, h.Type())

	raw, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypePipelineStep, PipelineInput{
		Workflow: "order-sync",
		Payload:  json.RawMessage(`{"order_id":42}`),
	}))
	require.NoError(t, err)

	var result PipelineResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "order-sync", result.Workflow)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.JSONEq(t, `{"status":"queued"}`, string(result.Response))
}

func TestPipelineHandlerRejectsBadWorkflow(t *testing.T) {
	h := NewPipelineHandler("http://localhost:5678/webhook")
	for _, workflow := range []string{"", "a/b", ".."} {
		_, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypePipelineStep, PipelineInput{Workflow: workflow}))
		assert.Error(t, err, "workflow %q should be rejected", workflow)
	}
}

func TestPipelineHandlerUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow not found", http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewPipelineHandler(srv.URL)
	_, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypePipelineStep, PipelineInput{Workflow: "ghost"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// ============================================================================
// FileOrganizeHandler
// ============================================================================

func TestFileOrganizeByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.jpg", "noext"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "existing"), 0o755))

	h := NewFileOrganizeHandler(nil)
	assert.Equal(t, model.TaskTypeFileOrganize, h.Type())

	raw, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeFileOrganize, FileOrganizeInput{
		Directory: dir,
	}))
	require.NoError(t, err)

	var result FileOrganizeResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 4, result.Moved)
	assert.Equal(t, 1, result.Skipped) // 子目录不处理
	assert.ElementsMatch(t, []string{"pdf", "jpg", "misc"}, result.Folders)

	// 文件确实被移动
	assert.FileExists(t, filepath.Join(dir, "pdf", "a.pdf"))
	assert.FileExists(t, filepath.Join(dir, "jpg", "c.jpg"))
	assert.FileExists(t, filepath.Join(dir, "misc", "noext"))
	assert.NoFileExists(t, filepath.Join(dir, "a.pdf"))
}

func TestFileOrganizeDryRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	h := NewFileOrganizeHandler(nil)
	raw, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeFileOrganize, FileOrganizeInput{
		Directory: dir,
		DryRun:    true,
	}))
	require.NoError(t, err)

	var result FileOrganizeResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Moved)

	// 文件未动
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "txt", "a.txt"))
}

func TestFileOrganizeByDate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.log")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	stamp := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, stamp, stamp))

	h := NewFileOrganizeHandler(nil)
	raw, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeFileOrganize, FileOrganizeInput{
		Directory: dir,
		Strategy:  StrategyByDate,
	}))
	require.NoError(t, err)

	var result FileOrganizeResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, []string{"2025-03"}, result.Folders)
	assert.FileExists(t, filepath.Join(dir, "2025-03", "old.log"))
}

func TestFileOrganizeBadInput(t *testing.T) {
	h := NewFileOrganizeHandler(nil)

	_, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeFileOrganize, FileOrganizeInput{}))
	assert.Error(t, err)

	_, err = h.Execute(context.Background(), taskWithInput(t, model.TaskTypeFileOrganize, FileOrganizeInput{
		Directory: t.TempDir(),
		Strategy:  "by_vibes",
	}))
	assert.Error(t, err)
}

// ============================================================================
// IngestionHandler
// ============================================================================

func TestIngestionRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	lines := `{"role":"user","content":"hi"}
{"role":"assistant","content":"hello"}
not json at all
{"role":"user","content":"bye"}

`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	h := NewIngestionHandler(nil)
	assert.Equal(t, model.TaskTypeIngestionRun, h.Type())

	raw, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeIngestionRun, IngestionInput{
		SourcePath: path,
		BatchSize:  2,
	}))
	require.NoError(t, err)

	var result IngestionResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 3, result.Records)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Batches)
}

func TestIngestionMissingSource(t *testing.T) {
	h := NewIngestionHandler(nil)
	_, err := h.Execute(context.Background(), taskWithInput(t, model.TaskTypeIngestionRun, IngestionInput{
		SourcePath: "/nonexistent/file.jsonl",
	}))
	assert.Error(t, err)
}

// ============================================================================
// Registry + BotCommandHandler
// ============================================================================

// memBotStore 内存 Bot 持久层（测试用）
type memBotStore struct {
	mu   sync.Mutex
	bots map[string]*model.Bot
}

var _ storage.BotStore = (*memBotStore)(nil)

func newMemBotStore() *memBotStore {
	return &memBotStore{bots: make(map[string]*model.Bot)}
}

func (m *memBotStore) CreateBot(ctx context.Context, bot *model.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[bot.ID]; ok {
		return storage.ErrDuplicate
	}
	cp := *bot
	m.bots[bot.ID] = &cp
	return nil
}

func (m *memBotStore) GetBot(ctx context.Context, id string) (*model.Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.bots[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *bot
	return &cp, nil
}

func (m *memBotStore) UpdateBot(ctx context.Context, bot *model.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[bot.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *bot
	m.bots[bot.ID] = &cp
	return nil
}

func (m *memBotStore) ListBots(ctx context.Context) ([]*model.Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Bot
	for _, bot := range m.bots {
		cp := *bot
		out = append(out, &cp)
	}
	return out, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(newMemBotStore(), cache.NewMemoryCache())
}

func TestRegistryCreateDefaults(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	bot := &model.Bot{Name: "Alex", Department: "operations", Capabilities: []string{"chat"}}
	require.NoError(t, r.Create(ctx, bot))
	assert.NotEmpty(t, bot.ID)
	assert.Equal(t, model.BotStatusOffline, bot.Status)
	assert.Equal(t, 100, bot.HealthScore)

	// 名称必填
	assert.Error(t, r.Create(ctx, &model.Bot{}))
}

func TestRegistryHeartbeatOverlay(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	bot := &model.Bot{ID: "bot-hb", Name: "HB"}
	require.NoError(t, r.Create(ctx, bot))

	// 落库快照为 offline；心跳上报 busy
	require.NoError(t, r.Heartbeat(ctx, "bot-hb", model.BotStatusBusy, 72))

	got, err := r.Get(ctx, "bot-hb")
	require.NoError(t, err)
	assert.Equal(t, model.BotStatusBusy, got.Status)
	assert.Equal(t, 72, got.HealthScore)

	online, err := r.OnlineBots(ctx)
	require.NoError(t, err)
	assert.Contains(t, online, "bot-hb")
}

func TestBotCommandHandler(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, &model.Bot{ID: "bot-cmd", Name: "Cmd"}))

	h := NewBotCommandHandler(r)
	assert.Equal(t, model.TaskTypeBotCommand, h.Type())

	// mark_online
	raw, err := h.Execute(ctx, taskWithInput(t, model.TaskTypeBotCommand, BotCommandInput{
		BotID: "bot-cmd", Command: CommandMarkOnline,
	}))
	require.NoError(t, err)
	var result BotCommandResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, model.BotStatusOnline, result.Bot.Status)

	// set_health 超界收敛
	raw, err = h.Execute(ctx, taskWithInput(t, model.TaskTypeBotCommand, BotCommandInput{
		BotID: "bot-cmd", Command: CommandSetHealth, HealthScore: 250,
	}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 100, result.Bot.HealthScore)

	// 未知指令 / 未知 Bot
	_, err = h.Execute(ctx, taskWithInput(t, model.TaskTypeBotCommand, BotCommandInput{
		BotID: "bot-cmd", Command: "explode",
	}))
	assert.Error(t, err)

	_, err = h.Execute(ctx, taskWithInput(t, model.TaskTypeBotCommand, BotCommandInput{
		BotID: "ghost", Command: CommandMarkBusy,
	}))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
