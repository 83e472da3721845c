package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/google/uuid"
)

// ObjectStorage 定义了通用的对象存储操作接口
type ObjectStorage interface {
	// 上传对象到指定存储桶
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error)
	// 从指定存储桶下载对象，返回读取器和对象信息
	GetObject(ctx context.Context, bucketName, objectName string) (GetObjectResult, error)
	// 获取对象元信息，不拉取内容
	StatObject(ctx context.Context, bucketName, objectName string) (ObjectInfo, error)
	// 从指定存储桶删除对象
	RemoveObject(ctx context.Context, bucketName, objectName string) error
	// 生成客户端直传用的预签名 PUT URL
	PresignedPutURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error)
	// 生成限时下载用的预签名 GET URL，downloadName 写入 Content-Disposition
	PresignedGetURL(ctx context.Context, bucketName, objectName, downloadName string, expiry time.Duration) (string, error)
	// 检查存储桶是否存在
	IsBucketExist(ctx context.Context, bucketName string) (bool, error)
	// 创建存储桶
	MakeBucket(ctx context.Context, bucketName string) error
}

type PutObjectResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

type GetObjectResult struct {
	Reader   io.ReadCloser // 使用后需要关闭
	Size     int64
	MimeType string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

var ErrObjectNotFound = errors.New("对象不存在")

// NewObjectStorage 根据配置选择存储后端
func NewObjectStorage(cfg *config.Config) (ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "minio":
		return NewMinIOStorage(&cfg.MinIO)
	case "aliyun_oss":
		return NewAliyunOSSStorage(&cfg.AliyunOSS)
	default:
		return nil, errors.New("invalid storage type: " + cfg.Storage.Type)
	}
}

// BuildUploadPath 生成对象存储路径，时间戳加随机段保证永不复用
// 形如 clients/<clientID>/<unixNano>-<uuid>/<fileName>
func BuildUploadPath(clientID, fileName string) string {
	return fmt.Sprintf("clients/%s/%d-%s/%s",
		clientID, time.Now().UnixNano(), uuid.NewString(), url.PathEscape(fileName))
}
