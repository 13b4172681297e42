// Package repository Connection 相关的存储操作
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"brebot-admin/internal/shared/model"
	"brebot-admin/internal/shared/storage"
)

const connectionColumns = `id, service, status, scopes, ingestion_enabled, created_at, updated_at`

// CreateConnection 创建外部服务连接记录
func (s *Store) CreateConnection(ctx context.Context, conn *model.Connection) error {
	scopesJSON, err := json.Marshal(conn.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	query := s.rebind(`
		INSERT INTO connections (id, service, status, scopes, ingestion_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	_, err = s.db.ExecContext(ctx, query,
		conn.ID, conn.Service, conn.Status, scopesJSON,
		conn.IngestionEnabled, conn.CreatedAt, conn.UpdatedAt)
	return translateError(err)
}

// GetConnection 获取连接，不存在返回 ErrNotFound
func (s *Store) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	query := s.rebind(`SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`)
	conn, err := scanConnection(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translateError(err)
	}
	return conn, nil
}

// UpdateConnection 整记录覆盖写
func (s *Store) UpdateConnection(ctx context.Context, conn *model.Connection) error {
	scopesJSON, err := json.Marshal(conn.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	query := s.rebind(`
		UPDATE connections
		SET service = $1, status = $2, scopes = $3, ingestion_enabled = $4, updated_at = $5
		WHERE id = $6
	`)
	res, err := s.db.ExecContext(ctx, query,
		conn.Service, conn.Status, scopesJSON, conn.IngestionEnabled, conn.UpdatedAt, conn.ID)
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

// ListConnections 列出所有连接
func (s *Store) ListConnections(ctx context.Context) ([]*model.Connection, error) {
	query := s.rebind(`SELECT ` + connectionColumns + ` FROM connections ORDER BY created_at ASC`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var conns []*model.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// DeleteConnection 物理删除连接记录
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	query := s.rebind(`DELETE FROM connections WHERE id = $1`)
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

// scanConnection 辅助函数：从数据库行扫描 Connection
func scanConnection(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Connection, error) {
	conn := &model.Connection{}
	var scopesJSON []byte
	err := scanner.Scan(
		&conn.ID, &conn.Service, &conn.Status, &scopesJSON,
		&conn.IngestionEnabled, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(scopesJSON) > 0 && string(scopesJSON) != "null" {
		if err := json.Unmarshal(scopesJSON, &conn.Scopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
	}
	return conn, nil
}
