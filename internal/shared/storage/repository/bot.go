// Package repository Bot 相关的存储操作
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"
)

const botColumns = `id, name, department, capabilities, status, health_score, created_at, updated_at`

// CreateBot 创建 Bot
func (s *Store) CreateBot(ctx context.Context, bot *model.Bot) error {
	capsJSON, err := json.Marshal(bot.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	query := s.rebind(`
		INSERT INTO bots (id, name, department, capabilities, status, health_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	_, err = s.db.ExecContext(ctx, query,
		bot.ID, bot.Name, bot.Department, capsJSON,
		bot.Status, bot.HealthScore, bot.CreatedAt, bot.UpdatedAt)
	return translateError(err)
}

// GetBot 获取 Bot，不存在返回 ErrNotFound
func (s *Store) GetBot(ctx context.Context, id string) (*model.Bot, error) {
	query := s.rebind(`SELECT ` + botColumns + ` FROM bots WHERE id = $1`)
	bot, err := scanBot(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return bot, nil
}

// UpdateBot 整记录覆盖写
//
// Bot 永不删除，下线通过 status=offline 表达。
func (s *Store) UpdateBot(ctx context.Context, bot *model.Bot) error {
	capsJSON, err := json.Marshal(bot.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	query := s.rebind(`
		UPDATE bots
		SET name = $1, department = $2, capabilities = $3, status = $4, health_score = $5, updated_at = $6
		WHERE id = $7
	`)
	res, err := s.db.ExecContext(ctx, query,
		bot.Name, bot.Department, capsJSON, bot.Status, bot.HealthScore, bot.UpdatedAt, bot.ID)
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

// ListBots 列出所有 Bot
func (s *Store) ListBots(ctx context.Context) ([]*model.Bot, error) {
	query := s.rebind(`SELECT ` + botColumns + ` FROM bots ORDER BY created_at ASC`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var bots []*model.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// scanBot 辅助函数：从数据库行扫描 Bot
func scanBot(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Bot, error) {
	bot := &model.Bot{}
	var capsJSON []byte
	err := scanner.Scan(
		&bot.ID, &bot.Name, &bot.Department, &capsJSON,
		&bot.Status, &bot.HealthScore, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(capsJSON) > 0 && string(capsJSON) != "null" {
		if err := json.Unmarshal(capsJSON, &bot.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
		}
	}
	return bot, nil
}
