package cache

import (
	"context"
	"fmt"
	"time"
)

// 缓存通用接口
type Cache interface {
	// Set在缓存中设置一个值，并指定过期时间。
	// value应该是一个可以被JSON封送的结构体或指向结构体的指针。
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Get从缓存中检索一个值，并将其解编组到目标接口。
	// target应该是一个指针，指向希望解编组成的类型。
	Get(ctx context.Context, key string, target any) error

	// 删除一个或多个key
	Del(ctx context.Context, keys ...string) error

	// 检查key是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// IncrWithTTL 原子自增，key首次创建时设置过期时间，用于限流计数
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Expire(ctx context.Context, key string, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// CacheTTL 元数据缓存的基础过期时间，使用方可叠加随机抖动防止雪崩
const CacheTTL = 10 * time.Minute

// GenerateDocumentKey 单个文档元数据缓存键
func GenerateDocumentKey(documentID string) string {
	return fmt.Sprintf("docvault:document:%s", documentID)
}

// GenerateFolderListKey 客户目录下的文件夹列表缓存键
func GenerateFolderListKey(clientID string, parentFolderID *string) string {
	if parentFolderID == nil {
		return fmt.Sprintf("docvault:folders:client:%s:parent:root", clientID)
	}
	return fmt.Sprintf("docvault:folders:client:%s:parent:%s", clientID, *parentFolderID)
}

// GenerateFolderTreeKey 客户完整目录树缓存键
func GenerateFolderTreeKey(clientID string) string {
	return fmt.Sprintf("docvault:foldertree:client:%s", clientID)
}

// GenerateUploadSessionKey 上传会话键，TTL 内有效
func GenerateUploadSessionKey(sessionID string) string {
	return fmt.Sprintf("docvault:upload:session:%s", sessionID)
}

// GenerateRateLimitKey 限流计数键，按操作者与分钟窗口
func GenerateRateLimitKey(actorID string, window int64) string {
	return fmt.Sprintf("docvault:ratelimit:%s:%d", actorID, window)
}

// GeneratePasswordAttemptKey 分享口令尝试计数键
func GeneratePasswordAttemptKey(shareToken string) string {
	return fmt.Sprintf("docvault:share:attempts:%s", shareToken)
}

// AuditDropCounterKey 访问日志丢弃计数
const AuditDropCounterKey = "docvault:audit:drops"
