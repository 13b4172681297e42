// Package bots file_organize 任务 Handler
package bots

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/objstore"
)

// 整理策略
const (
	StrategyByExtension = "by_extension"
	StrategyByDate      = "by_date"
)

// FileOrganizeInput file_organize 任务输入载荷
type FileOrganizeInput struct {
	// Directory 要整理的目录（绝对路径）
	Directory string `json:"directory"`

	// Strategy 整理策略：by_extension（默认）或 by_date
	Strategy string `json:"strategy,omitempty"`

	// DryRun 只生成计划不移动文件
	DryRun bool `json:"dry_run,omitempty"`
}

// FileMove 单个文件的移动记录
type FileMove struct {
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

// FileOrganizeResult file_organize 任务结果载荷
type FileOrganizeResult struct {
	Directory    string     `json:"directory"`
	Strategy     string     `json:"strategy"`
	DryRun       bool       `json:"dry_run"`
	Moved        int        `json:"moved"`
	Skipped      int        `json:"skipped"`
	Folders      []string   `json:"folders,omitempty"`
	Moves        []FileMove `json:"moves,omitempty"`
	ReportObject string     `json:"report_object,omitempty"`
}

// FileOrganizeHandler 扫描目录并按规则归类文件
//
// 只处理目录直属文件，子目录不递归（归类目标本身就是子目录）。
// 整理报告作为 JSON 产物上传到对象存储（未配置时跳过）。
type FileOrganizeHandler struct {
	artifacts *objstore.Client // 可为 nil
}

// NewFileOrganizeHandler 创建 file_organize Handler
func NewFileOrganizeHandler(artifacts *objstore.Client) *FileOrganizeHandler {
	return &FileOrganizeHandler{artifacts: artifacts}
}

func (h *FileOrganizeHandler) Type() model.TaskType {
	return model.TaskTypeFileOrganize
}

func (h *FileOrganizeHandler) Execute(ctx context.Context, task *model.Task) (json.RawMessage, error) {
	var input FileOrganizeInput
	if err := json.Unmarshal(task.Input, &input); err != nil {
		return nil, fmt.Errorf("invalid file_organize input: %w", err)
	}
	if input.Directory == "" {
		return nil, fmt.Errorf("file_organize input requires a directory")
	}
	if input.Strategy == "" {
		input.Strategy = StrategyByExtension
	}
	if input.Strategy != StrategyByExtension && input.Strategy != StrategyByDate {
		return nil, fmt.Errorf("unknown organize strategy: %s", input.Strategy)
	}

	entries, err := os.ReadDir(input.Directory)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	result := FileOrganizeResult{
		Directory: input.Directory,
		Strategy:  input.Strategy,
		DryRun:    input.DryRun,
	}
	folders := map[string]bool{}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			result.Skipped++
			continue
		}

		folder, err := targetFolder(input, entry)
		if err != nil {
			log.Printf("[FileOrganize] Skipping %s: %v", entry.Name(), err)
			result.Skipped++
			continue
		}

		if !input.DryRun {
			destDir := filepath.Join(input.Directory, folder)
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return nil, fmt.Errorf("create folder %s: %w", folder, err)
			}
			src := filepath.Join(input.Directory, entry.Name())
			dst := filepath.Join(destDir, entry.Name())
			if err := os.Rename(src, dst); err != nil {
				return nil, fmt.Errorf("move %s: %w", entry.Name(), err)
			}
		}

		folders[folder] = true
		result.Moved++
		result.Moves = append(result.Moves, FileMove{Name: entry.Name(), Folder: folder})
	}

	for f := range folders {
		result.Folders = append(result.Folders, f)
	}

	if h.artifacts != nil {
		key, err := h.artifacts.PutReport(ctx, string(model.TaskTypeFileOrganize), result)
		if err != nil {
			log.Printf("[FileOrganize] Report upload failed: %v", err)
		} else {
			result.ReportObject = key
		}
	}

	return json.Marshal(result)
}

// targetFolder 根据策略计算文件的归类子目录
func targetFolder(input FileOrganizeInput, entry os.DirEntry) (string, error) {
	switch input.Strategy {
	case StrategyByDate:
		info, err := entry.Info()
		if err != nil {
			return "", err
		}
		return info.ModTime().Format("2006-01"), nil
	default:
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
		if ext == "" {
			ext = "misc"
		}
		return ext, nil
	}
}
