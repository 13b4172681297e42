// Package objstore 任务产物的对象存储
//
// 产物只有两类：Handler 生成的 JSON 报告（整理结果、摄取统计）
// 和摄取源文件的归档副本。对象键由本包生成并返回给调用方，
// 写入任务 result 供仪表盘引用。
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"brebot-admin/internal/config"
)

// Client 产物存储客户端
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 创建产物存储客户端
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "brebot-artifacts"
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// EnsureBucket 确保产物 bucket 存在（启动期调用）
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("[ObjStore] Created bucket: %s", c.bucket)
	}
	return nil
}

// PutReport 上传任务报告，返回对象键
//
// category 区分任务类型（如 file_organize），报告序列化为
// 缩进 JSON 方便人工查看。
func (c *Client) PutReport(ctx context.Context, category string, report interface{}) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := fmt.Sprintf("reports/%s/%s.json", category, uuid.NewString())
	if err := c.put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// PutArchive 上传摄取源的归档副本，返回对象键
func (c *Client) PutArchive(ctx context.Context, reader io.Reader, size int64) (string, error) {
	key := fmt.Sprintf("ingestion/%s.jsonl", uuid.NewString())
	if err := c.put(ctx, key, reader, size, "application/x-ndjson"); err != nil {
		return "", err
	}
	return key, nil
}

// FetchArtifact 按键读取产物，调用方负责关闭返回的 ReadCloser
func (c *Client) FetchArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	// 验证对象存在（GetObject 不会立即返回错误）
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return obj, nil
}

func (c *Client) put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
