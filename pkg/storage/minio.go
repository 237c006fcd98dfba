// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
// 入库文档的原始正文在这里保存一份归档副本，向量库重建索引时可以回放。
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ragchat-go/internal/config"
	"ragchat-go/pkg/log"
)

// Client 封装了 MinIO 客户端与目标存储桶。
type Client struct {
	minioClient *minio.Client
	bucketName  string
}

// NewClient 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewClient(cfg config.MinIOConfig) *Client {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	return &Client{minioClient: minioClient, bucketName: cfg.BucketName}
}

func objectName(documentID string) string {
	return fmt.Sprintf("documents/%s.txt", documentID)
}

// ArchiveDocument 将文档正文以 documents/{id}.txt 的形式归档，重复归档即覆盖。
func (c *Client) ArchiveDocument(ctx context.Context, documentID, content string) error {
	reader := strings.NewReader(content)
	_, err := c.minioClient.PutObject(ctx, c.bucketName, objectName(documentID), reader, int64(len(content)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("归档文档正文到 MinIO 失败: %w", err)
	}
	return nil
}

// RemoveDocument 删除某篇文档的归档副本。
func (c *Client) RemoveDocument(ctx context.Context, documentID string) error {
	err := c.minioClient.RemoveObject(ctx, c.bucketName, objectName(documentID), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除 MinIO 归档副本失败: %w", err)
	}
	return nil
}
