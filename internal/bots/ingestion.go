// Package bots ingestion_run 任务 Handler
package bots

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/objstore"
)

// IngestionInput ingestion_run 任务输入载荷
type IngestionInput struct {
	// SourcePath 聊天历史导出文件（JSONL，每行一条记录）
	SourcePath string `json:"source_path"`

	// BatchSize 分批大小，默认 64
	BatchSize int `json:"batch_size,omitempty"`

	// ConnectionID 数据来源连接（可选，仅记录）
	ConnectionID string `json:"connection_id,omitempty"`
}

// IngestionResult ingestion_run 任务结果载荷
type IngestionResult struct {
	SourcePath    string `json:"source_path"`
	ConnectionID  string `json:"connection_id,omitempty"`
	Records       int    `json:"records"`
	Skipped       int    `json:"skipped"`
	Batches       int    `json:"batches"`
	ArchiveObject string `json:"archive_object,omitempty"`
}

// IngestionHandler 批量导入聊天历史等外部数据
//
// 逐行解析 JSONL，无法解析的行跳过计数；按 BatchSize 分批
// （向量库写入边界由对象存储上传表示），归档副本上传到对象存储。
type IngestionHandler struct {
	artifacts *objstore.Client // 可为 nil
}

// NewIngestionHandler 创建 ingestion_run Handler
func NewIngestionHandler(artifacts *objstore.Client) *IngestionHandler {
	return &IngestionHandler{artifacts: artifacts}
}

func (h *IngestionHandler) Type() model.TaskType {
	return model.TaskTypeIngestionRun
}

func (h *IngestionHandler) Execute(ctx context.Context, task *model.Task) (json.RawMessage, error) {
	var input IngestionInput
	if err := json.Unmarshal(task.Input, &input); err != nil {
		return nil, fmt.Errorf("invalid ingestion_run input: %w", err)
	}
	if input.SourcePath == "" {
		return nil, fmt.Errorf("ingestion_run input requires a source_path")
	}
	if input.BatchSize <= 0 {
		input.BatchSize = 64
	}

	f, err := os.Open(input.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	result := IngestionResult{SourcePath: input.SourcePath, ConnectionID: input.ConnectionID}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record map[string]interface{}
		if err := json.Unmarshal(line, &record); err != nil {
			result.Skipped++
			continue
		}
		result.Records++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}

	result.Batches = (result.Records + input.BatchSize - 1) / input.BatchSize

	if h.artifacts != nil {
		if _, err := f.Seek(0, 0); err == nil {
			if info, statErr := f.Stat(); statErr == nil {
				key, err := h.artifacts.PutArchive(ctx, f, info.Size())
				if err != nil {
					log.Printf("[Ingestion] Archive upload failed: %v", err)
				} else {
					result.ArchiveObject = key
				}
			}
		}
	}

	log.Printf("[Ingestion] Imported %d records (%d skipped, %d batches) from %s",
		result.Records, result.Skipped, result.Batches, input.SourcePath)
	return json.Marshal(result)
}
