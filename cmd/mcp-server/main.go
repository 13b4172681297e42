// Package main MCP Server 入口
//
// 以 stdio 传输对外提供 MCP 工具，让 Claude Code 等 AI 客户端
// 直接提交任务、查询状态、操作 Bot 注册表。进程内嵌完整的
// 调度器栈，与 API Server 共享同一套存储配置。
//
// 注意：stdout 被 MCP 协议占用，所有日志走 stderr（log 默认行为）。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"brebot-admin/internal/bots"
	"brebot-admin/internal/config"
	"brebot-admin/internal/dispatcher"
	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/infra"
	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/objstore"
	"brebot-admin/internal/taskstore"
)

const version = "0.1.0"

// submitParams submit_task 工具入参
type submitParams struct {
	Type     string `json:"type" jsonschema:"task type: chat, file_organize, pipeline_step, bot_command or ingestion_run"`
	Input    string `json:"input,omitempty" jsonschema:"task input payload as a JSON object string"`
	Owner    string `json:"owner,omitempty" jsonschema:"bot id that owns the task"`
	DedupKey string `json:"dedup_key,omitempty" jsonschema:"idempotency key; resubmitting with the same key reuses the active task"`
}

// getTaskParams get_task 工具入参
type getTaskParams struct {
	ID string `json:"id" jsonschema:"task id"`
}

// listTasksParams list_tasks 工具入参
type listTasksParams struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status"`
	Type   string `json:"type,omitempty" jsonschema:"filter by task type"`
	Owner  string `json:"owner,omitempty" jsonschema:"filter by owning bot id"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of tasks to return"`
}

// chatParams chat 工具入参
type chatParams struct {
	Message string `json:"message" jsonschema:"message to send to the local LLM"`
	Model   string `json:"model,omitempty" jsonschema:"override the default model"`
}

// organizeParams organize_files 工具入参
type organizeParams struct {
	Directory string `json:"directory" jsonschema:"absolute path of the directory to organize"`
	Strategy  string `json:"strategy,omitempty" jsonschema:"by_extension (default) or by_date"`
	DryRun    bool   `json:"dry_run,omitempty" jsonschema:"plan only, do not move files"`
}

// emptyParams 无入参工具
type emptyParams struct{}

// mcpJSONResponse 将数据序列化为 JSON 文本返回
func mcpJSONResponse(data interface{}) (*mcpsdk.CallToolResultFor[any], error) {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcpErrorResponse(err)
	}
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(raw)}},
	}, nil
}

// mcpErrorResponse 以 IsError 结果返回错误，让客户端可见并自行纠正
func mcpErrorResponse(err error) (*mcpsdk.CallToolResultFor[any], error) {
	return &mcpsdk.CallToolResultFor[any]{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}, nil
}

// waitForTerminal 轮询任务直到终态或超时，返回最新快照
func waitForTerminal(ctx context.Context, store *taskstore.Store, id string, timeout time.Duration) (*model.Task, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		task, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.IsTerminal() {
			return task, nil
		}
		if time.Now().After(deadline) {
			// 未终态也返回快照，客户端可用 get_task 继续跟踪
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, nil
		case <-ticker.C:
		}
	}
}

func main() {
	cfg := config.Load()
	log.Printf("Starting MCP Server... [env=%s]", cfg.Env)

	store, err := infra.NewDatabaseStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var stateCache cache.Cache
	redisCache, err := infra.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Printf("Redis unavailable, falling back to in-memory cache: %v", err)
		stateCache = cache.NewMemoryCache()
	} else {
		stateCache = redisCache
	}
	defer stateCache.Close()

	var artifacts *objstore.Client
	if cfg.MinIO.Endpoint != "" {
		if artifacts, err = objstore.NewClient(cfg.MinIO); err != nil {
			log.Printf("MinIO unavailable, task artifacts disabled: %v", err)
			artifacts = nil
		}
	}

	botRegistry := bots.NewRegistry(store, stateCache)

	registry := dispatcher.NewRegistry()
	for _, h := range []dispatcher.Handler{
		bots.NewChatHandler(cfg.Services.OllamaURL, cfg.Services.OllamaModel),
		bots.NewFileOrganizeHandler(artifacts),
		bots.NewPipelineHandler(cfg.Services.N8NWebhookURL),
		bots.NewBotCommandHandler(botRegistry),
		bots.NewIngestionHandler(artifacts),
	} {
		if err := registry.Register(h); err != nil {
			log.Fatalf("Failed to register handler %s: %v", h.Type(), err)
		}
	}

	d := dispatcher.New(
		taskstore.NewStore(stateCache, store),
		registry,
		dispatcher.NewNotifier(cfg.Dispatcher.NotifierBuffer),
		cfg.Dispatcher,
		dispatcher.NewMetrics("mcp"),
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.Shutdown(ctx); err != nil {
			log.Printf("Dispatcher shutdown error: %v", err)
		}
	}()

	impl := &mcpsdk.Implementation{
		Name:    "brebot-mcp",
		Version: version,
	}
	serverOpts := &mcpsdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.InitializedParams) {
			fmt.Fprintf(os.Stderr, "MCP connection established\n")
		},
	}
	server := mcpsdk.NewServer(impl, serverOpts)

	// submit_task：提交任意类型的任务，立即返回 pending 记录
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "submit_task",
		Description: "Submit an async task (chat, file_organize, pipeline_step, bot_command, ingestion_run). Returns the pending task record immediately; use get_task to poll.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[submitParams]) (*mcpsdk.CallToolResultFor[any], error) {
		args := params.Arguments
		if args.Type == "" {
			return mcpErrorResponse(fmt.Errorf("type is required"))
		}
		var input json.RawMessage
		if args.Input != "" {
			if !json.Valid([]byte(args.Input)) {
				return mcpErrorResponse(fmt.Errorf("input is not valid JSON"))
			}
			input = json.RawMessage(args.Input)
		}
		task, err := d.Submit(ctx, dispatcher.SubmitRequest{
			Type:     model.TaskType(args.Type),
			Input:    input,
			Owner:    args.Owner,
			DedupKey: args.DedupKey,
		})
		if err != nil {
			return mcpErrorResponse(err)
		}
		return mcpJSONResponse(task)
	})

	// get_task：查询任务详情
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "get_task",
		Description: "Get a task by id, including status, result and error.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[getTaskParams]) (*mcpsdk.CallToolResultFor[any], error) {
		if params.Arguments.ID == "" {
			return mcpErrorResponse(fmt.Errorf("id is required"))
		}
		task, err := d.Store().Get(ctx, params.Arguments.ID)
		if err != nil {
			return mcpErrorResponse(err)
		}
		return mcpJSONResponse(task)
	})

	// list_tasks：按条件列出任务
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_tasks",
		Description: "List tasks filtered by status, type or owner, newest first.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[listTasksParams]) (*mcpsdk.CallToolResultFor[any], error) {
		args := params.Arguments
		tasks, err := d.Store().List(ctx, &model.TaskFilter{
			Status: model.TaskStatus(args.Status),
			Type:   model.TaskType(args.Type),
			Owner:  args.Owner,
			Limit:  args.Limit,
		})
		if err != nil {
			return mcpErrorResponse(err)
		}
		return mcpJSONResponse(map[string]interface{}{"tasks": tasks, "count": len(tasks)})
	})

	// cancel_task：协作取消
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "cancel_task",
		Description: "Request cooperative cancellation of a task. Running handlers observe the signal at their next checkpoint.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[getTaskParams]) (*mcpsdk.CallToolResultFor[any], error) {
		if params.Arguments.ID == "" {
			return mcpErrorResponse(fmt.Errorf("id is required"))
		}
		if err := d.Cancel(ctx, params.Arguments.ID); err != nil {
			return mcpErrorResponse(err)
		}
		return mcpJSONResponse(map[string]string{"id": params.Arguments.ID, "status": "cancelling"})
	})

	// chat：提交 chat 任务并等待回复（同步便捷工具）
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "chat",
		Description: "Send a message to the local LLM and wait for the reply.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[chatParams]) (*mcpsdk.CallToolResultFor[any], error) {
		args := params.Arguments
		if args.Message == "" {
			return mcpErrorResponse(fmt.Errorf("message is required"))
		}
		input, err := json.Marshal(bots.ChatInput{Message: args.Message, Model: args.Model})
		if err != nil {
			return mcpErrorResponse(err)
		}
		task, err := d.Submit(ctx, dispatcher.SubmitRequest{Type: model.TaskTypeChat, Input: input})
		if err != nil {
			return mcpErrorResponse(err)
		}
		done, err := waitForTerminal(ctx, d.Store(), task.ID, cfg.Dispatcher.TimeoutFor(string(model.TaskTypeChat))+5*time.Second)
		if err != nil {
			return mcpErrorResponse(err)
		}
		return mcpJSONResponse(done)
	})

	// organize_files：提交 file_organize 任务并等待报告
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "organize_files",
		Description: "Organize the files in a directory into subfolders by extension or by month, and wait for the report. Set dry_run to preview.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[organizeParams]) (*mcpsdk.CallToolResultFor[any], error) {
		args := params.Arguments
		if args.Directory == "" {
			return mcpErrorResponse(fmt.Errorf("directory is required"))
		}
		input, err := json.Marshal(bots.FileOrganizeInput{
			Directory: args.Directory,
			Strategy:  args.Strategy,
			DryRun:    args.DryRun,
		})
		if err != nil {
			return mcpErrorResponse(err)
		}
		task, err := d.Submit(ctx, dispatcher.SubmitRequest{Type: model.TaskTypeFileOrganize, Input: input})
		if err != nil {
			return mcpErrorResponse(err)
		}
		done, err := waitForTerminal(ctx, d.Store(), task.ID, cfg.Dispatcher.TimeoutFor(string(model.TaskTypeFileOrganize))+5*time.Second)
		if err != nil {
			return mcpErrorResponse(err)
		}
		return mcpJSONResponse(done)
	})

	// list_bots：列出 Bot 注册表（含心跳覆盖）
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_bots",
		Description: "List registered bots with their live status and health score.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[emptyParams]) (*mcpsdk.CallToolResultFor[any], error) {
		list, err := botRegistry.List(ctx)
		if err != nil {
			return mcpErrorResponse(err)
		}
		return mcpJSONResponse(map[string]interface{}{"bots": list, "count": len(list)})
	})

	log.Println("MCP Server listening on stdio")
	if err := server.Run(context.Background(), mcpsdk.NewStdioTransport()); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
