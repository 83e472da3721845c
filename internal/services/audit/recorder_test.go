package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAccessLogRepo struct {
	mu   sync.Mutex
	logs []models.DocumentAccessLog
	// 阻塞 Create，用来把缓冲区填满
	gate chan struct{}
}

func (r *memAccessLogRepo) Create(entry *models.DocumentAccessLog) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *memAccessLogRepo) ListByDocument(documentID string, limit int) ([]models.DocumentAccessLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentAccessLog
	for _, l := range r.logs {
		if l.DocumentID == documentID {
			out = append(out, l)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memAccessLogRepo) ListByUser(userID string, limit int) ([]models.DocumentAccessLog, error) {
	return nil, nil
}

func (r *memAccessLogRepo) CountByDocument(documentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.logs {
		if l.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

var _ repositories.AccessLogRepository = (*memAccessLogRepo)(nil)

type countingCache struct {
	cache.Cache
	mu       sync.Mutex
	counters map[string]int64
}

func newCountingCache() *countingCache {
	return &countingCache{counters: make(map[string]int64)}
}

func (c *countingCache) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func TestRecorderWritesThroughBuffer(t *testing.T) {
	repo := &memAccessLogRepo{}
	rec := NewRecorder(repo, newCountingCache(), 16)

	userID := "staff-1"
	for i := 0; i < 5; i++ {
		rec.Record(Entry{
			DocumentID: "doc-1",
			ClientID:   "client-1",
			UserID:     &userID,
			Action:     models.AccessActionDownload,
		})
	}
	rec.Close()

	count, err := repo.CountByDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestRecorderCapsHistoryAtHundred(t *testing.T) {
	repo := &memAccessLogRepo{}
	for i := 0; i < 150; i++ {
		require.NoError(t, repo.Create(&models.DocumentAccessLog{
			DocumentID: "doc-1",
			ClientID:   "client-1",
			Action:     models.AccessActionView,
		}))
	}
	rec := NewRecorder(repo, newCountingCache(), 16)
	defer rec.Close()

	logs, err := rec.ListByDocument(context.Background(), "doc-1", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 100)

	// 超出上限的请求也被收紧到 100
	logs, err = rec.ListByDocument(context.Background(), "doc-1", 500)
	require.NoError(t, err)
	assert.Len(t, logs, 100)

	logs, err = rec.ListByDocument(context.Background(), "doc-1", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 10)
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	gate := make(chan struct{})
	repo := &memAccessLogRepo{gate: gate}
	c := newCountingCache()
	rec := NewRecorder(repo, c, 2)

	// 第一条进入写协程后卡在 gate 上，再塞满缓冲区
	for i := 0; i < 10; i++ {
		rec.Record(Entry{
			DocumentID: fmt.Sprintf("doc-%d", i),
			ClientID:   "client-1",
			Action:     models.AccessActionView,
		})
	}

	close(gate)
	rec.Close()

	c.mu.Lock()
	dropped := c.counters[cache.AuditDropCounterKey]
	c.mu.Unlock()
	assert.Greater(t, dropped, int64(0), "overflow entries must be counted as dropped")

	repo.mu.Lock()
	written := int64(len(repo.logs))
	repo.mu.Unlock()
	assert.Equal(t, int64(10), written+dropped, "every entry is either written or counted as dropped")
}

// 关停后在途请求还可能调 Record，必须按丢弃处理而不是 panic
func TestRecorderRecordAfterClose(t *testing.T) {
	repo := &memAccessLogRepo{}
	c := newCountingCache()
	rec := NewRecorder(repo, c, 16)
	rec.Close()

	assert.NotPanics(t, func() {
		rec.Record(Entry{
			DocumentID: "doc-1",
			ClientID:   "client-1",
			Action:     models.AccessActionScan,
		})
	})

	c.mu.Lock()
	dropped := c.counters[cache.AuditDropCounterKey]
	c.mu.Unlock()
	assert.Equal(t, int64(1), dropped)

	count, err := repo.CountByDocument("doc-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// 重复 Close 也安全
	assert.NotPanics(t, rec.Close)
}
