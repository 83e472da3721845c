package setup

import (
	"context"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"go.uber.org/zap"
)

// InitStorage 按配置选择对象存储后端，并确保存储桶存在。
func InitStorage(cfg *config.Config) storage.ObjectStorage {
	store, err := storage.NewObjectStorage(cfg)
	if err != nil {
		logger.Fatal("初始化对象存储失败", zap.String("type", cfg.Storage.Type), zap.Error(err))
	}
	logger.Info("对象存储已初始化", zap.String("type", cfg.Storage.Type))

	var bucketName string
	switch cfg.Storage.Type {
	case "aliyun_oss":
		bucketName = cfg.AliyunOSS.BucketName
	default:
		bucketName = cfg.MinIO.BucketName
	}

	// 为外部调用使用带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := store.IsBucketExist(ctx, bucketName)
	if err != nil {
		logger.Fatal("检查存储桶存在性失败", zap.String("bucket", bucketName), zap.Error(err))
	}
	if !exists {
		logger.Info("存储桶不存在，尝试创建...", zap.String("bucket", bucketName))
		if err := store.MakeBucket(ctx, bucketName); err != nil {
			logger.Fatal("创建存储桶失败", zap.String("bucket", bucketName), zap.Error(err))
		}
		logger.Info("存储桶创建成功", zap.String("bucket", bucketName))
	} else {
		logger.Info("存储桶已存在", zap.String("bucket", bucketName))
	}

	return store
}
