// Package bots chat 任务 Handler
package bots

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"brebot-admin/internal/shared/model"
)

// ChatInput chat 任务输入载荷
type ChatInput struct {
	// Message 用户消息
	Message string `json:"message"`

	// Model 覆盖默认模型（可选）
	Model string `json:"model,omitempty"`

	// System 系统提示词（可选）
	System string `json:"system,omitempty"`
}

// ChatResult chat 任务结果载荷
type ChatResult struct {
	Reply string `json:"reply"`
	Model string `json:"model"`
}

// ChatHandler 调用本地 LLM 运行时（Ollama /api/chat）生成回复
type ChatHandler struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

// NewChatHandler 创建 chat Handler
//
// 不设置 client 超时：执行时限由调度器通过 ctx 控制。
func NewChatHandler(baseURL, defaultModel string) *ChatHandler {
	return &ChatHandler{
		client:       &http.Client{},
		baseURL:      baseURL,
		defaultModel: defaultModel,
	}
}

func (h *ChatHandler) Type() model.TaskType {
	return model.TaskTypeChat
}

// ollamaChatRequest Ollama /api/chat 请求体
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse Ollama /api/chat 非流式响应体
type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
}

func (h *ChatHandler) Execute(ctx context.Context, task *model.Task) (json.RawMessage, error) {
	var input ChatInput
	if err := json.Unmarshal(task.Input, &input); err != nil {
		return nil, fmt.Errorf("invalid chat input: %w", err)
	}
	if input.Message == "" {
		return nil, fmt.Errorf("chat input requires a non-empty message")
	}

	llmModel := input.Model
	if llmModel == "" {
		llmModel = h.defaultModel
	}

	var messages []ollamaMessage
	if input.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: input.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: input.Message})

	body, err := json.Marshal(ollamaChatRequest{Model: llmModel, Messages: messages, Stream: false})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm runtime request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm runtime returned %d: %s", resp.StatusCode, string(data))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}

	result := ChatResult{Reply: chatResp.Message.Content, Model: chatResp.Model}
	if result.Model == "" {
		result.Model = llmModel
	}
	return json.Marshal(result)
}
