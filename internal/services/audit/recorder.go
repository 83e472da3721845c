package audit

import (
	"context"
	"sync"
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/repositories"
	"go.uber.org/zap"
)

// 查询访问日志时单次返回的上限
const maxHistoryEntries = 100

// Entry 一次待记录的访问事件
type Entry struct {
	DocumentID string
	ClientID   string
	UserID     *string
	ShareID    *string
	Action     string
	IPAddress  *string
	UserAgent  *string
	SessionID  *string
}

// Recorder 异步追加访问日志
// Record 从不把失败传导给调用方：审计失败不能挡住业务请求
type Recorder interface {
	Record(entry Entry)
	ListByDocument(ctx context.Context, documentID string, limit int) ([]models.DocumentAccessLog, error)
	// Close 等待缓冲区排空，进程退出前调用
	Close()
}

type recorder struct {
	repo    repositories.AccessLogRepository
	cache   cache.Cache
	entries chan Entry
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ Recorder = (*recorder)(nil)

// NewRecorder 创建访问日志记录器并启动后台写入协程
func NewRecorder(repo repositories.AccessLogRepository, c cache.Cache, bufferSize int) Recorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	r := &recorder{
		repo:    repo,
		cache:   c,
		entries: make(chan Entry, bufferSize),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *recorder) loop() {
	defer close(r.done)
	for entry := range r.entries {
		log := &models.DocumentAccessLog{
			DocumentID: entry.DocumentID,
			ClientID:   entry.ClientID,
			UserID:     entry.UserID,
			ShareID:    entry.ShareID,
			Action:     entry.Action,
			IPAddress:  entry.IPAddress,
			UserAgent:  entry.UserAgent,
			SessionID:  entry.SessionID,
		}
		if err := r.repo.Create(log); err != nil {
			logger.Error("Failed to append access log",
				zap.String("documentID", entry.DocumentID), zap.String("action", entry.Action), zap.Error(err))
		}
	}
}

func (r *recorder) Record(entry Entry) {
	// 关停后仍可能有在途请求调 Record，按丢弃处理而不是写已关闭的通道
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.drop(entry)
		return
	}
	select {
	case r.entries <- entry:
	default:
		// 缓冲满时丢弃并计数，绝不阻塞请求路径
		r.drop(entry)
	}
}

func (r *recorder) drop(entry Entry) {
	if _, err := r.cache.IncrWithTTL(context.Background(), cache.AuditDropCounterKey, 24*time.Hour); err != nil {
		logger.Warn("Failed to count dropped audit entry", zap.Error(err))
	}
	logger.Warn("Access log entry dropped",
		zap.String("documentID", entry.DocumentID), zap.String("action", entry.Action))
}

func (r *recorder) ListByDocument(ctx context.Context, documentID string, limit int) ([]models.DocumentAccessLog, error) {
	if limit <= 0 || limit > maxHistoryEntries {
		limit = maxHistoryEntries
	}
	return r.repo.ListByDocument(documentID, limit)
}

func (r *recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()
	<-r.done
}
