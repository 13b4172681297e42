// Package bots pipeline_step 任务 Handler
package bots

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"brebot-admin/internal/shared/model"
)

// PipelineInput pipeline_step 任务输入载荷
type PipelineInput struct {
	// Workflow n8n 工作流的 Webhook 路径段
	Workflow string `json:"workflow"`

	// Payload 透传给工作流的 JSON 载荷（可选）
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PipelineResult pipeline_step 任务结果载荷
type PipelineResult struct {
	Workflow   string          `json:"workflow"`
	StatusCode int             `json:"status_code"`
	Response   json.RawMessage `json:"response,omitempty"`
}

// PipelineHandler 触发外部工作流（n8n Webhook）并转发响应
type PipelineHandler struct {
	client  *http.Client
	baseURL string
}

// NewPipelineHandler 创建 pipeline_step Handler
func NewPipelineHandler(webhookBaseURL string) *PipelineHandler {
	return &PipelineHandler{
		client:  &http.Client{},
		baseURL: strings.TrimRight(webhookBaseURL, "/"),
	}
}

func (h *PipelineHandler) Type() model.TaskType {
	return model.TaskTypePipelineStep
}

func (h *PipelineHandler) Execute(ctx context.Context, task *model.Task) (json.RawMessage, error) {
	var input PipelineInput
	if err := json.Unmarshal(task.Input, &input); err != nil {
		return nil, fmt.Errorf("invalid pipeline_step input: %w", err)
	}
	if input.Workflow == "" {
		return nil, fmt.Errorf("pipeline_step input requires a workflow")
	}
	if strings.Contains(input.Workflow, "/") || strings.Contains(input.Workflow, "..") {
		return nil, fmt.Errorf("invalid workflow name: %s", input.Workflow)
	}
	if h.baseURL == "" {
		return nil, fmt.Errorf("webhook base URL is not configured")
	}

	payload := input.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	url := h.baseURL + "/" + input.Workflow
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("workflow %s returned %d: %s", input.Workflow, resp.StatusCode, string(body))
	}

	result := PipelineResult{Workflow: input.Workflow, StatusCode: resp.StatusCode}
	if json.Valid(body) {
		result.Response = body
	} else if len(body) > 0 {
		// 非 JSON 响应包一层字符串
		quoted, _ := json.Marshal(string(body))
		result.Response = quoted
	}
	return json.Marshal(result)
}
