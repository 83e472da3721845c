package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memTxManager 测试用事务管理器，直接执行闭包，tx 传 nil
type memTxManager struct{}

func (memTxManager) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// memFolderRepo 内存文件夹仓库，实现与 SQL 等价的物化路径语义
type memFolderRepo struct {
	mu      sync.Mutex
	folders map[string]*models.Folder
}

func newMemFolderRepo() *memFolderRepo {
	return &memFolderRepo{folders: make(map[string]*models.Folder)}
}

func (r *memFolderRepo) Create(folder *models.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	cp := *folder
	r.folders[folder.ID] = &cp
	return nil
}

func (r *memFolderRepo) FindByID(id string) (*models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok {
		return nil, xerr.ErrFolderNotFound
	}
	cp := *f
	return &cp, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (r *memFolderRepo) FindByName(clientID string, parentFolderID *string, name string) (*models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.folders {
		if f.ClientID == clientID && f.Name == name && sameParent(f.ParentFolderID, parentFolderID) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, xerr.ErrFolderNotFound
}

func (r *memFolderRepo) ListByParent(clientID string, parentFolderID *string) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Folder
	for _, f := range r.folders {
		if f.ClientID == clientID && sameParent(f.ParentFolderID, parentFolderID) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memFolderRepo) ListByClient(clientID string) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Folder
	for _, f := range r.folders {
		if f.ClientID == clientID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *memFolderRepo) FindSubtreeForUpdate(tx *gorm.DB, clientID, pathPrefix string) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Folder
	for _, f := range r.folders {
		if f.ClientID == clientID && (f.Path == pathPrefix || strings.HasPrefix(f.Path, pathPrefix+"/")) {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *memFolderRepo) Update(folder *models.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *folder
	r.folders[folder.ID] = &cp
	return nil
}

func (r *memFolderRepo) UpdateTx(tx *gorm.DB, folder *models.Folder) error {
	return r.Update(folder)
}

func (r *memFolderRepo) UpdateSubtreePaths(tx *gorm.DB, clientID, oldPrefix, newPrefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// 与 SQL 版保持同一行匹配语义：path = 前缀 或 path LIKE 前缀+"/%"
	for _, f := range r.folders {
		if f.ClientID == clientID && (f.Path == oldPrefix || strings.HasPrefix(f.Path, oldPrefix+"/")) {
			f.Path = newPrefix + f.Path[len(oldPrefix):]
		}
	}
	return nil
}

func (r *memFolderRepo) CountChildren(id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, f := range r.folders {
		if f.ParentFolderID != nil && *f.ParentFolderID == id {
			count++
		}
	}
	return count, nil
}

func (r *memFolderRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.folders, id)
	return nil
}

var _ repositories.FolderRepository = (*memFolderRepo)(nil)

// memDocumentRepo 内存文档仓库，ClearCurrentFlag 保持条件 UPDATE 的原子语义
type memDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*models.DocumentFile
}

func newMemDocumentRepo() *memDocumentRepo {
	return &memDocumentRepo{docs: make(map[string]*models.DocumentFile)}
}

func (r *memDocumentRepo) Create(doc *models.DocumentFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *memDocumentRepo) CreateTx(tx *gorm.DB, doc *models.DocumentFile) error {
	return r.Create(doc)
}

func (r *memDocumentRepo) FindByID(id string) (*models.DocumentFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, xerr.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDocumentRepo) FindByStoragePath(path string) (*models.DocumentFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.StoragePath == path {
			cp := *d
			return &cp, nil
		}
	}
	return nil, xerr.ErrDocumentNotFound
}

func (r *memDocumentRepo) ListByFolder(clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentFile
	for _, d := range r.docs {
		if d.ClientID != clientID || !d.IsCurrentVersion {
			continue
		}
		if folderID != nil && (d.FolderID == nil || *d.FolderID != *folderID) {
			continue
		}
		if folderID == nil && d.FolderID != nil {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalName < out[j].OriginalName })
	return out, int64(len(out)), nil
}

func (r *memDocumentRepo) ListVersions(rootID string) ([]models.DocumentFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentFile
	for _, d := range r.docs {
		if d.ID == rootID || (d.ParentVersionID != nil && *d.ParentVersionID == rootID) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (r *memDocumentRepo) Search(params repositories.DocumentSearchParams) ([]models.DocumentFile, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentFile
	for _, d := range r.docs {
		if d.ClientID != params.ClientID {
			continue
		}
		if params.CurrentOnly && !d.IsCurrentVersion {
			continue
		}
		if len(params.IDs) > 0 {
			found := false
			for _, id := range params.IDs {
				if d.ID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		} else if params.Query != "" && !strings.Contains(strings.ToLower(d.OriginalName), strings.ToLower(params.Query)) {
			continue
		}
		if params.DocumentType != nil && d.DocumentType != *params.DocumentType {
			continue
		}
		if params.TaxYear != nil && (d.TaxYear == nil || *d.TaxYear != *params.TaxYear) {
			continue
		}
		out = append(out, *d)
	}
	return out, int64(len(out)), nil
}

func (r *memDocumentRepo) Update(doc *models.DocumentFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *memDocumentRepo) ClearCurrentFlag(tx *gorm.DB, rootID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, d := range r.docs {
		inChain := d.ID == rootID || (d.ParentVersionID != nil && *d.ParentVersionID == rootID)
		if inChain && d.IsCurrentVersion {
			d.IsCurrentVersion = false
			affected++
		}
	}
	return affected, nil
}

func (r *memDocumentRepo) TouchAccess(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[id]; ok {
		now := time.Now()
		d.LastAccessedAt = &now
		d.AccessCount++
	}
	return nil
}

func (r *memDocumentRepo) UpdateScanStatus(id, from, to string, result *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.VirusScanStatus != from {
		return false, nil
	}
	d.VirusScanStatus = to
	if result != nil {
		d.VirusScanResult = result
	}
	return true, nil
}

func (r *memDocumentRepo) UpdateProcessingStatus(id, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.ProcessingStatus != from {
		return false, nil
	}
	d.ProcessingStatus = to
	return true, nil
}

func (r *memDocumentRepo) CountByFolder(folderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, d := range r.docs {
		if d.FolderID != nil && *d.FolderID == folderID {
			count++
		}
	}
	return count, nil
}

func (r *memDocumentRepo) DeleteVersions(tx *gorm.DB, rootID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.docs {
		if d.ID == rootID || (d.ParentVersionID != nil && *d.ParentVersionID == rootID) {
			delete(r.docs, id)
		}
	}
	return nil
}

func (r *memDocumentRepo) StatsByClient(clientID string) (*repositories.DocumentStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repositories.DocumentStats{
		ByDocumentType: make(map[string]int64),
		ByScanStatus:   make(map[string]int64),
	}
	for _, d := range r.docs {
		if d.ClientID != clientID || !d.IsCurrentVersion {
			continue
		}
		stats.TotalDocuments++
		stats.TotalSize += d.FileSize
		stats.ByDocumentType[d.DocumentType]++
		stats.ByScanStatus[d.VirusScanStatus]++
	}
	return stats, nil
}

var _ repositories.DocumentRepository = (*memDocumentRepo)(nil)

// memShareRepo 只承担文档删除级联撤销的角色
type memShareRepo struct {
	mu      sync.Mutex
	revoked map[string]bool // documentID → 已级联撤销
}

func newMemShareRepo() *memShareRepo {
	return &memShareRepo{revoked: make(map[string]bool)}
}

func (r *memShareRepo) Create(share *models.DocumentShare) error { return nil }

func (r *memShareRepo) FindByID(id string) (*models.DocumentShare, error) {
	return nil, xerr.ErrShareNotFound
}

func (r *memShareRepo) FindByToken(token string) (*models.DocumentShare, error) {
	return nil, xerr.ErrShareNotFound
}

func (r *memShareRepo) ListByDocument(documentID string) ([]models.DocumentShare, error) {
	return nil, nil
}

func (r *memShareRepo) ListByClient(clientID string, page, pageSize int) ([]models.DocumentShare, int64, error) {
	return nil, 0, nil
}

func (r *memShareRepo) Update(share *models.DocumentShare) error { return nil }

func (r *memShareRepo) Revoke(id, revokedBy string) (bool, error) { return false, nil }

func (r *memShareRepo) RevokeAllByDocument(tx *gorm.DB, documentID, revokedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[documentID] = true
	return nil
}

func (r *memShareRepo) IncrementDownloadCount(id string) (bool, error) { return false, nil }

func (r *memShareRepo) TouchAccess(id string) error { return nil }

var _ repositories.ShareRepository = (*memShareRepo)(nil)

// memCommentRepo 只承担文档删除级联清理的角色
type memCommentRepo struct {
	mu      sync.Mutex
	deleted map[string]bool // documentID → 已级联删除
}

func newMemCommentRepo() *memCommentRepo {
	return &memCommentRepo{deleted: make(map[string]bool)}
}

func (r *memCommentRepo) Create(comment *models.DocumentComment) error { return nil }

func (r *memCommentRepo) FindByID(id string) (*models.DocumentComment, error) {
	return nil, xerr.ErrCommentNotFound
}

func (r *memCommentRepo) ListByDocument(documentID string) ([]models.DocumentComment, error) {
	return nil, nil
}

func (r *memCommentRepo) Update(comment *models.DocumentComment) error { return nil }

func (r *memCommentRepo) Delete(id string) error { return nil }

func (r *memCommentRepo) DeleteByDocument(tx *gorm.DB, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted[documentID] = true
	return nil
}

func (r *memCommentRepo) CountReplies(parentCommentID string) (int64, error) { return 0, nil }

var _ repositories.CommentRepository = (*memCommentRepo)(nil)

// memCache JSON 序列化的内存缓存，语义对齐 RedisCache
type memCache struct {
	mu       sync.Mutex
	items    map[string][]byte
	counters map[string]int64
}

func newMemCache() *memCache {
	return &memCache{items: make(map[string][]byte), counters: make(map[string]int64)}
}

func (c *memCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
	return nil
}

func (c *memCache) Get(ctx context.Context, key string, target any) error {
	c.mu.Lock()
	data, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, target)
}

func (c *memCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *memCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok, nil
}

func (c *memCache) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *memCache) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func (c *memCache) TTL(ctx context.Context, key string) (time.Duration, error) { return 0, nil }

var _ cache.Cache = (*memCache)(nil)

// memStorage 内存对象存储，对象真的有内容，供校验和复算
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (s *memStorage) putBytes(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objKey(bucket, key)] = data
}

func (s *memStorage) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (storage.PutObjectResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.PutObjectResult{}, err
	}
	s.putBytes(bucketName, objectName, data)
	return storage.PutObjectResult{Bucket: bucketName, Key: objectName, Size: int64(len(data))}, nil
}

func (s *memStorage) GetObject(ctx context.Context, bucketName, objectName string) (storage.GetObjectResult, error) {
	s.mu.Lock()
	data, ok := s.objects[objKey(bucketName, objectName)]
	s.mu.Unlock()
	if !ok {
		return storage.GetObjectResult{}, storage.ErrObjectNotFound
	}
	return storage.GetObjectResult{
		Reader: io.NopCloser(bytes.NewReader(data)),
		Size:   int64(len(data)),
	}, nil
}

func (s *memStorage) StatObject(ctx context.Context, bucketName, objectName string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	data, ok := s.objects[objKey(bucketName, objectName)]
	s.mu.Unlock()
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: objectName, Size: int64(len(data))}, nil
}

func (s *memStorage) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objKey(bucketName, objectName))
	return nil
}

func (s *memStorage) PresignedPutURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	return "https://storage.test/put/" + objectName, nil
}

func (s *memStorage) PresignedGetURL(ctx context.Context, bucketName, objectName, downloadName string, expiry time.Duration) (string, error) {
	return "https://storage.test/get/" + objectName, nil
}

func (s *memStorage) IsBucketExist(ctx context.Context, bucketName string) (bool, error) {
	return true, nil
}

func (s *memStorage) MakeBucket(ctx context.Context, bucketName string) error { return nil }

var _ storage.ObjectStorage = (*memStorage)(nil)
