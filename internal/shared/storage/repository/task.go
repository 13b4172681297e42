// Package repository Task 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"
)

// taskColumns SELECT 时的列顺序，与 scanTask 保持一致
const taskColumns = `id, type, status, input, result, error, owner, dedup_key, version, created_at, updated_at`

// CreateTask 创建任务
func (s *Store) CreateTask(ctx context.Context, task *model.Task) error {
	errorJSON, err := marshalTaskError(task.Error)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO tasks (id, type, status, input, result, error, owner, dedup_key, version, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ` + s.dialect.BooleanLiteral(false) + `, $10, $11)
	`)
	_, err = s.db.ExecContext(ctx, query,
		task.ID, task.Type, task.Status,
		nullableJSON(task.Input), nullableJSON(task.Result), errorJSON,
		task.Owner, task.DedupKey, task.Version,
		task.CreatedAt, task.UpdatedAt)
	return translateError(err)
}

// GetTask 获取任务，不存在返回 ErrNotFound（含已归档记录，审计可查）
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := s.rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`)
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return task, nil
}

// UpdateTask 整记录覆盖写，按 expectedVersion 做乐观锁
//
// 写入时将 version 置为 task.Version，WHERE 条件约束当前行版本
// 仍为 expectedVersion；受影响行数为 0 时区分"记录不存在"与
// "版本冲突"两种失败。
func (s *Store) UpdateTask(ctx context.Context, task *model.Task, expectedVersion int64) error {
	errorJSON, err := marshalTaskError(task.Error)
	if err != nil {
		return err
	}

	query := s.rebind(`
		UPDATE tasks
		SET status = $1, input = $2, result = $3, error = $4, owner = $5, dedup_key = $6, version = $7, updated_at = $8
		WHERE id = $9 AND version = $10
	`)
	res, err := s.db.ExecContext(ctx, query,
		task.Status, nullableJSON(task.Input), nullableJSON(task.Result), errorJSON,
		task.Owner, task.DedupKey, task.Version, task.UpdatedAt,
		task.ID, expectedVersion)
	if err != nil {
		return translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := s.GetTask(ctx, task.ID); getErr != nil {
			return getErr
		}
		return storage.ErrConflict
	}
	return nil
}

// ListTasks 按过滤条件查询任务（不含已归档记录）
func (s *Store) ListTasks(ctx context.Context, filter *model.TaskFilter) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE archived = ` + s.dialect.BooleanLiteral(false)
	var args []interface{}
	argN := 0
	cond := func(clause string, value interface{}) {
		argN++
		query += fmt.Sprintf(" AND %s $%d", clause, argN)
		args = append(args, value)
	}

	if filter != nil {
		if filter.Status != "" {
			cond("status =", filter.Status)
		}
		if filter.Type != "" {
			cond("type =", filter.Type)
		}
		if filter.Owner != "" {
			cond("owner =", filter.Owner)
		}
		if !filter.CreatedAfter.IsZero() {
			cond("created_at >=", filter.CreatedAfter)
		}
		if !filter.CreatedBefore.IsZero() {
			cond("created_at <=", filter.CreatedBefore)
		}
	}

	query += " ORDER BY created_at DESC"
	if filter != nil && filter.Limit > 0 {
		argN++
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ArchiveTask 归档任务（审计保留，不物理删除）
func (s *Store) ArchiveTask(ctx context.Context, id string) error {
	query := s.rebind(`UPDATE tasks SET archived = ` + s.dialect.BooleanLiteral(true) + `, updated_at = ` + s.dialect.CurrentTimestamp() + ` WHERE id = $1`)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return translateError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetTaskByDedupKey 按幂等键查找非终态未归档任务
//
// 同键可能存在多条历史记录（前序任务进入终态后键被释放），
// 取创建时间最新的一条非终态记录。
func (s *Store) GetTaskByDedupKey(ctx context.Context, dedupKey string) (*model.Task, error) {
	query := s.rebind(`
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE dedup_key = $1 AND status IN ($2, $3) AND archived = ` + s.dialect.BooleanLiteral(false) + `
		ORDER BY created_at DESC
		LIMIT 1
	`)
	task, err := scanTask(s.db.QueryRowContext(ctx, query, dedupKey,
		model.TaskStatusPending, model.TaskStatusRunning))
	if err != nil {
		return nil, translateError(err)
	}
	return task, nil
}

// scanTask 辅助函数：从数据库行扫描 Task
func scanTask(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Task, error) {
	task := &model.Task{}
	var inputJSON, resultJSON, errorJSON []byte
	var owner, dedupKey sql.NullString
	err := scanner.Scan(
		&task.ID, &task.Type, &task.Status,
		&inputJSON, &resultJSON, &errorJSON,
		&owner, &dedupKey, &task.Version,
		&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Owner = owner.String
	task.DedupKey = dedupKey.String
	if len(inputJSON) > 0 {
		task.Input = json.RawMessage(inputJSON)
	}
	if len(resultJSON) > 0 {
		task.Result = json.RawMessage(resultJSON)
	}
	if len(errorJSON) > 0 && string(errorJSON) != "null" {
		task.Error = &model.TaskError{}
		if err := json.Unmarshal(errorJSON, task.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task error: %w", err)
		}
	}
	return task, nil
}

// marshalTaskError 序列化结构化错误，nil 写入 SQL NULL
func marshalTaskError(taskErr *model.TaskError) (interface{}, error) {
	if taskErr == nil {
		return nil, nil
	}
	data, err := json.Marshal(taskErr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task error: %w", err)
	}
	return data, nil
}

// nullableJSON 空 RawMessage 写入 SQL NULL，避免空字符串污染 JSON 列
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
