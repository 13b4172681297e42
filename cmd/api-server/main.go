// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brebot-admin/internal/apiserver/auth"
	"brebot-admin/internal/apiserver/server"
	"brebot-admin/internal/bots"
	"brebot-admin/internal/config"
	"brebot-admin/internal/connections"
	"brebot-admin/internal/dispatcher"
	"brebot-admin/internal/shared/cache"
	"brebot-admin/internal/shared/infra"
	"brebot-admin/internal/shared/objstore"
	"brebot-admin/internal/taskstore"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换数据库和 Redis）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化持久层（PostgreSQL / SQLite）
	store, err := infra.NewDatabaseStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	// 初始化缓存层（Redis），连接失败时降级到进程内缓存
	var stateCache cache.Cache
	redisCache, err := infra.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Printf("Redis unavailable, falling back to in-memory cache: %v", err)
		stateCache = cache.NewMemoryCache()
	} else {
		stateCache = redisCache
	}
	defer stateCache.Close()

	// 初始化对象存储（MinIO），未配置时任务产物上传跳过
	var artifacts *objstore.Client
	if cfg.MinIO.Endpoint != "" {
		artifacts, err = objstore.NewClient(cfg.MinIO)
		if err != nil {
			log.Printf("MinIO unavailable, task artifacts disabled: %v", err)
			artifacts = nil
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := artifacts.EnsureBucket(ctx); err != nil {
				log.Printf("MinIO bucket check failed, task artifacts disabled: %v", err)
				artifacts = nil
			}
			cancel()
		}
	}

	// Bot / Connection 注册表
	botRegistry := bots.NewRegistry(store, stateCache)
	connRegistry := connections.NewRegistry(store)

	// Handler 注册表：每种任务类型一个 Handler，启动后冻结
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

	// 任务调度器
	d := dispatcher.New(
		taskstore.NewStore(stateCache, store),
		registry,
		dispatcher.NewNotifier(cfg.Dispatcher.NotifierBuffer),
		cfg.Dispatcher,
		dispatcher.NewMetrics("dispatcher"),
	)

	// 认证配置
	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = cfg.Auth.JWTSecret
	if cfg.Auth.AccessTokenTTL != "" {
		ttl, err := time.ParseDuration(cfg.Auth.AccessTokenTTL)
		if err != nil {
			log.Fatalf("Invalid access_token_ttl %q: %v", cfg.Auth.AccessTokenTTL, err)
		}
		authCfg.AccessTokenTTL = ttl
	}
	if !authCfg.Enabled() {
		log.Println("JWT_SECRET not set, API authentication disabled")
	}

	s := server.NewServer(d, botRegistry, connRegistry, authCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭：先停 HTTP，再等执行中任务退出。
	// srv.Shutdown 一开始 ListenAndServe 就会返回，main 必须等
	// 调度器排空完成后才能退出，否则执行中任务被进程退出打断。
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := d.Shutdown(ctx); err != nil {
			log.Printf("Dispatcher shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	<-shutdownDone
	fmt.Println("Server stopped")
}
