// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在 .env 文件中（YAML 中不存储任何密码）。
//	.env 文件同时被 Docker Compose（--env-file）、Go 应用（godotenv）
//	共用，确保单一数据源。
//
// 环境：
//   - 开发: APP_ENV=dev → configs/dev.yaml + .env
//   - 测试: APP_ENV=test → configs/test.yaml
//   - 生产: APP_ENV=prod → configs/prod.yaml
package config

import "time"

// YAMLConfig 统一 YAML 配置文件结构
type YAMLConfig struct {
	Server     ServerConfig     `yaml:"server"`     // API Server 监听配置
	Database   DatabaseConfig   `yaml:"database"`   // 持久层（PostgreSQL / SQLite）
	Redis      RedisConfig      `yaml:"redis"`      // 缓存层
	MinIO      MinIOConfig      `yaml:"minio"`      // MinIO 对象存储（任务产物）
	Auth       AuthConfig       `yaml:"auth"`       // 认证（API Server）
	Dispatcher DispatcherConfig `yaml:"dispatcher"` // 任务调度器
	Services   ServicesConfig   `yaml:"services"`   // 外部服务端点
}

// ServerConfig API Server 配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" 或 "sqlite"（默认 sqlite）
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 DB_PASSWORD 环境变量读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // 只从 REDIS_PASSWORD 环境变量读取
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// AuthConfig 认证配置
// 注意：JWTSecret 只从环境变量读取，不存储在 YAML 中
type AuthConfig struct {
	JWTSecret      string `yaml:"-"`                // 只从 JWT_SECRET 环境变量读取
	AccessTokenTTL string `yaml:"access_token_ttl"` // 例如 "15m"
}

// DispatcherConfig 任务调度器配置
type DispatcherConfig struct {
	// DefaultTimeout 所有任务类型的默认执行超时
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// TypeTimeouts 按任务类型覆盖超时，key 为任务类型名
	TypeTimeouts map[string]time.Duration `yaml:"type_timeouts"`

	// NotifierBuffer 事件订阅者 channel 缓冲大小
	NotifierBuffer int `yaml:"notifier_buffer"`
}

// ServicesConfig 外部服务端点配置
type ServicesConfig struct {
	// OllamaURL 本地 LLM 运行时地址（chat 任务）
	OllamaURL string `yaml:"ollama_url"`

	// OllamaModel 默认对话模型
	OllamaModel string `yaml:"ollama_model"`

	// N8NWebhookURL n8n 工作流 Webhook 基地址（pipeline_step 任务）
	N8NWebhookURL string `yaml:"n8n_webhook_url"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string // "postgres" 或 "sqlite"
	DatabaseURL    string // postgres URL 或 sqlite DSN
	RedisURL       string
	APIPort        string
	Auth           AuthConfig
	MinIO          MinIOConfig
	Dispatcher     DispatcherConfig
	Services       ServicesConfig
}
