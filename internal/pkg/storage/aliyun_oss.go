package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"go.uber.org/zap"
)

type AliyunOSSStorage struct {
	client *oss.Client
	cfg    *config.AliyunOSSConfig
}

// NewAliyunOSSStorage 创建并返回一个 AliyunOSSStorage 实例
func NewAliyunOSSStorage(cfg *config.AliyunOSSConfig) (*AliyunOSSStorage, error) {
	// OSS Endpoint 应该包含 http:// 或 https:// 前缀
	ossClient, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		logger.Error("初始化阿里云OSS客户端失败", zap.Error(err))
		return nil, fmt.Errorf("无法初始化阿里云OSS客户端: %w", err)
	}
	logger.Info("阿里云OSS客户端初始化成功", zap.String("endpoint", cfg.Endpoint))
	return &AliyunOSSStorage{
		client: ossClient,
		cfg:    cfg,
	}, nil
}

func (s *AliyunOSSStorage) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error) {
	bucket, err := s.client.Bucket(bucketName)
	if err != nil {
		return PutObjectResult{}, fmt.Errorf("获取OSS存储桶失败: %w", err)
	}

	err = bucket.PutObject(objectName, reader, oss.ContentType(contentType))
	if err != nil {
		return PutObjectResult{}, fmt.Errorf("阿里云OSS上传文件失败: %w", err)
	}

	return PutObjectResult{
		Bucket: bucketName,
		Key:    objectName,
		Size:   objectSize,
	}, nil
}

func (s *AliyunOSSStorage) GetObject(ctx context.Context, bucketName, objectName string) (GetObjectResult, error) {
	bucket, err := s.client.Bucket(bucketName)
	if err != nil {
		return GetObjectResult{}, fmt.Errorf("获取OSS存储桶失败: %w", err)
	}

	reader, err := bucket.GetObject(objectName)
	if err != nil {
		return GetObjectResult{}, fmt.Errorf("阿里云OSS获取文件失败: %w", err)
	}

	props, err := bucket.GetObjectDetailedMeta(objectName)
	if err != nil {
		logger.Warn("获取OSS对象元数据失败", zap.String("object", objectName), zap.Error(err))
	}

	size := int64(0)
	if val := props.Get(oss.HTTPHeaderContentLength); val != "" {
		size, _ = strconv.ParseInt(val, 10, 64)
	}
	mimeType := props.Get(oss.HTTPHeaderContentType)

	return GetObjectResult{
		Reader:   reader,
		Size:     size,
		MimeType: mimeType,
	}, nil
}

func (s *AliyunOSSStorage) StatObject(ctx context.Context, bucketName, objectName string) (ObjectInfo, error) {
	bucket, err := s.client.Bucket(bucketName)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("获取OSS存储桶失败: %w", err)
	}

	exists, err := bucket.IsObjectExist(objectName)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("检查OSS对象存在性失败: %w", err)
	}
	if !exists {
		return ObjectInfo{}, ErrObjectNotFound
	}

	props, err := bucket.GetObjectDetailedMeta(objectName)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("获取OSS对象元数据失败: %w", err)
	}

	size := int64(0)
	if val := props.Get(oss.HTTPHeaderContentLength); val != "" {
		size, _ = strconv.ParseInt(val, 10, 64)
	}
	return ObjectInfo{
		Key:         objectName,
		Size:        size,
		ContentType: props.Get(oss.HTTPHeaderContentType),
		ETag:        props.Get(oss.HTTPHeaderEtag),
	}, nil
}

func (s *AliyunOSSStorage) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	bucket, err := s.client.Bucket(bucketName)
	if err != nil {
		return fmt.Errorf("获取OSS存储桶失败: %w", err)
	}
	if err := bucket.DeleteObject(objectName); err != nil {
		return fmt.Errorf("阿里云OSS删除文件失败: %w", err)
	}
	return nil
}

func (s *AliyunOSSStorage) PresignedPutURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	bucket, err := s.client.Bucket(bucketName)
	if err != nil {
		return "", fmt.Errorf("获取OSS存储桶失败: %w", err)
	}
	signedURL, err := bucket.SignURL(objectName, oss.HTTPPut, int64(expiry.Seconds()))
	if err != nil {
		return "", fmt.Errorf("阿里云OSS生成上传预签名URL失败: %w", err)
	}
	return signedURL, nil
}

func (s *AliyunOSSStorage) PresignedGetURL(ctx context.Context, bucketName, objectName, downloadName string, expiry time.Duration) (string, error) {
	bucket, err := s.client.Bucket(bucketName)
	if err != nil {
		return "", fmt.Errorf("获取OSS存储桶失败: %w", err)
	}
	var opts []oss.Option
	if downloadName != "" {
		opts = append(opts, oss.ResponseContentDisposition(fmt.Sprintf(`attachment; filename="%s"`, downloadName)))
	}
	signedURL, err := bucket.SignURL(objectName, oss.HTTPGet, int64(expiry.Seconds()), opts...)
	if err != nil {
		return "", fmt.Errorf("阿里云OSS生成下载预签名URL失败: %w", err)
	}
	return signedURL, nil
}

func (s *AliyunOSSStorage) IsBucketExist(ctx context.Context, bucketName string) (bool, error) {
	found, err := s.client.IsBucketExist(bucketName)
	if err != nil {
		return false, fmt.Errorf("检查阿里云OSS存储桶存在性失败: %w", err)
	}
	return found, nil
}

func (s *AliyunOSSStorage) MakeBucket(ctx context.Context, bucketName string) error {
	exists, err := s.client.IsBucketExist(bucketName)
	if err != nil {
		return fmt.Errorf("检查阿里云OSS存储桶存在性失败: %w", err)
	}
	if exists {
		logger.Info("阿里云OSS存储桶已存在，无需创建", zap.String("bucket", bucketName))
		return nil
	}
	if err := s.client.CreateBucket(bucketName); err != nil {
		return fmt.Errorf("创建阿里云OSS存储桶失败: %w", err)
	}
	logger.Info("阿里云OSS存储桶创建成功", zap.String("bucket", bucketName))
	return nil
}
