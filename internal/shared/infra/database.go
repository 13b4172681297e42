// Package infra 数据库基础设施初始化
package infra

import (
	"fmt"
	"log"

	"brebot-admin/internal/shared/storage/dbutil"
	postgresdriver "brebot-admin/internal/shared/storage/driver/postgres"
	sqlitedriver "brebot-admin/internal/shared/storage/driver/sqlite"
	"brebot-admin/internal/shared/storage/repository"
)

// NewDatabaseStore 根据驱动类型创建持久化存储
//
// sqlite 启动时自动迁移 schema；postgres 同样执行幂等的
// CREATE TABLE IF NOT EXISTS，生产环境可配合外部迁移工具。
func NewDatabaseStore(driver, databaseURL string) (*repository.Store, error) {
	switch driver {
	case "postgres":
		db, err := postgresdriver.Open(databaseURL)
		if err != nil {
			return nil, err
		}
		dialect := postgresdriver.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Printf("[Database/Infra] Connected to PostgreSQL")
		return repository.NewStore(db, dialect), nil

	case "sqlite", "":
		db, err := sqlitedriver.Open(databaseURL)
		if err != nil {
			return nil, err
		}
		dialect := sqlitedriver.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migrate: %w", err)
		}
		log.Printf("[Database/Infra] Opened SQLite database (driver=%s)", dbutil.DriverSQLite)
		return repository.NewStore(db, dialect), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
