package repositories

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cachedDocumentRepository 在 DB 仓库前加一层 Redis 读缓存
// 只缓存单文档元数据，列表和检索始终落库保证 total_count 准确
type cachedDocumentRepository struct {
	next  DocumentRepository
	cache cache.Cache
}

// NewCachedDocumentRepository creates a new cachedDocumentRepository instance.
func NewCachedDocumentRepository(next DocumentRepository, c cache.Cache) DocumentRepository {
	return &cachedDocumentRepository{next: next, cache: c}
}

func (r *cachedDocumentRepository) cacheTTL() time.Duration {
	// 随机抖动避免同批键同时过期
	return cache.CacheTTL + time.Duration(rand.Intn(300))*time.Second
}

func (r *cachedDocumentRepository) invalidate(ids ...string) {
	ctx := context.Background()
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cache.GenerateDocumentKey(id))
	}
	if err := r.cache.Del(ctx, keys...); err != nil {
		logger.Warn("Failed to invalidate document cache", zap.Strings("ids", ids), zap.Error(err))
	}
}

func (r *cachedDocumentRepository) invalidateChain(rootID string) {
	ids := []string{rootID}
	if versions, err := r.next.ListVersions(rootID); err == nil {
		for _, v := range versions {
			ids = append(ids, v.ID)
		}
	}
	r.invalidate(ids...)
}

func (r *cachedDocumentRepository) Create(doc *models.DocumentFile) error {
	if err := r.next.Create(doc); err != nil {
		return err
	}
	ctx := context.Background()
	if err := r.cache.Set(ctx, cache.GenerateDocumentKey(doc.ID), doc, r.cacheTTL()); err != nil {
		logger.Warn("Failed to cache created document", zap.String("documentID", doc.ID), zap.Error(err))
	}
	return nil
}

func (r *cachedDocumentRepository) CreateTx(tx *gorm.DB, doc *models.DocumentFile) error {
	// 事务内写入不预热缓存，事务可能回滚
	return r.next.CreateTx(tx, doc)
}

func (r *cachedDocumentRepository) FindByID(id string) (*models.DocumentFile, error) {
	ctx := context.Background()
	key := cache.GenerateDocumentKey(id)

	var cached models.DocumentFile
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn("Document cache read failed, falling through to DB", zap.String("documentID", id), zap.Error(err))
	}

	doc, err := r.next.FindByID(id)
	if err != nil {
		return nil, err
	}
	if setErr := r.cache.Set(ctx, key, doc, r.cacheTTL()); setErr != nil {
		logger.Warn("Failed to backfill document cache", zap.String("documentID", id), zap.Error(setErr))
	}
	return doc, nil
}

func (r *cachedDocumentRepository) FindByStoragePath(path string) (*models.DocumentFile, error) {
	return r.next.FindByStoragePath(path)
}

func (r *cachedDocumentRepository) ListByFolder(clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error) {
	return r.next.ListByFolder(clientID, folderID, page, pageSize)
}

func (r *cachedDocumentRepository) ListVersions(rootID string) ([]models.DocumentFile, error) {
	return r.next.ListVersions(rootID)
}

func (r *cachedDocumentRepository) Search(params DocumentSearchParams) ([]models.DocumentFile, int64, error) {
	return r.next.Search(params)
}

func (r *cachedDocumentRepository) Update(doc *models.DocumentFile) error {
	if err := r.next.Update(doc); err != nil {
		return err
	}
	r.invalidate(doc.ID)
	return nil
}

func (r *cachedDocumentRepository) ClearCurrentFlag(tx *gorm.DB, rootID string) (int64, error) {
	affected, err := r.next.ClearCurrentFlag(tx, rootID)
	if err != nil {
		return 0, err
	}
	// 链上任何版本都可能被缓存过，整条链失效
	r.invalidateChain(rootID)
	return affected, nil
}

func (r *cachedDocumentRepository) TouchAccess(id string) error {
	if err := r.next.TouchAccess(id); err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}

func (r *cachedDocumentRepository) UpdateScanStatus(id, from, to string, result *string) (bool, error) {
	ok, err := r.next.UpdateScanStatus(id, from, to, result)
	if err != nil {
		return false, err
	}
	if ok {
		r.invalidate(id)
	}
	return ok, nil
}

func (r *cachedDocumentRepository) UpdateProcessingStatus(id, from, to string) (bool, error) {
	ok, err := r.next.UpdateProcessingStatus(id, from, to)
	if err != nil {
		return false, err
	}
	if ok {
		r.invalidate(id)
	}
	return ok, nil
}

func (r *cachedDocumentRepository) CountByFolder(folderID string) (int64, error) {
	return r.next.CountByFolder(folderID)
}

func (r *cachedDocumentRepository) DeleteVersions(tx *gorm.DB, rootID string) error {
	r.invalidateChain(rootID)
	return r.next.DeleteVersions(tx, rootID)
}

func (r *cachedDocumentRepository) StatsByClient(clientID string) (*DocumentStats, error) {
	return r.next.StatsByClient(clientID)
}
