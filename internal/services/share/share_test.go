package share

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/clearledger/go-docvault/internal/services/audit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeShareRepo 内存分享仓库，IncrementDownloadCount 在锁内做与 SQL
// 条件 UPDATE 等价的判定，保持原子占用语义
type fakeShareRepo struct {
	mu     sync.Mutex
	shares map[string]*models.DocumentShare
}

func newFakeShareRepo() *fakeShareRepo {
	return &fakeShareRepo{shares: make(map[string]*models.DocumentShare)}
}

func (r *fakeShareRepo) Create(share *models.DocumentShare) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if share.ID == "" {
		share.ID = uuid.NewString()
	}
	cp := *share
	r.shares[share.ID] = &cp
	return nil
}

func (r *fakeShareRepo) FindByID(id string) (*models.DocumentShare, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[id]
	if !ok {
		return nil, xerr.ErrShareNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeShareRepo) FindByToken(token string) (*models.DocumentShare, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shares {
		if s.ShareToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, xerr.ErrShareNotFound
}

func (r *fakeShareRepo) ListByDocument(documentID string) ([]models.DocumentShare, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentShare
	for _, s := range r.shares {
		if s.DocumentID == documentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeShareRepo) ListByClient(clientID string, page, pageSize int) ([]models.DocumentShare, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentShare
	for _, s := range r.shares {
		if s.ClientID == clientID {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeShareRepo) Update(share *models.DocumentShare) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *share
	r.shares[share.ID] = &cp
	return nil
}

func (r *fakeShareRepo) Revoke(id, revokedBy string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[id]
	if !ok {
		return false, xerr.ErrShareNotFound
	}
	if s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	s.RevokedBy = &revokedBy
	return true, nil
}

func (r *fakeShareRepo) RevokeAllByDocument(tx *gorm.DB, documentID, revokedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.shares {
		if s.DocumentID == documentID && s.RevokedAt == nil {
			s.RevokedAt = &now
			s.RevokedBy = &revokedBy
		}
	}
	return nil
}

func (r *fakeShareRepo) IncrementDownloadCount(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shares[id]
	if !ok {
		return false, xerr.ErrShareNotFound
	}
	if s.RevokedAt != nil {
		return false, nil
	}
	if s.MaxDownloads != nil && s.DownloadCount >= *s.MaxDownloads {
		return false, nil
	}
	s.DownloadCount++
	return true, nil
}

func (r *fakeShareRepo) TouchAccess(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shares[id]; ok {
		now := time.Now()
		s.LastAccessedAt = &now
	}
	return nil
}

var _ repositories.ShareRepository = (*fakeShareRepo)(nil)

// fakeDocumentRepo 只实现分享服务用到的方法，其余返回零值
type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*models.DocumentFile
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[string]*models.DocumentFile)}
}

func (r *fakeDocumentRepo) put(doc *models.DocumentFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
}

func (r *fakeDocumentRepo) Create(doc *models.DocumentFile) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	r.put(doc)
	return nil
}

func (r *fakeDocumentRepo) CreateTx(tx *gorm.DB, doc *models.DocumentFile) error {
	return r.Create(doc)
}

func (r *fakeDocumentRepo) FindByID(id string) (*models.DocumentFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, xerr.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDocumentRepo) FindByStoragePath(path string) (*models.DocumentFile, error) {
	return nil, xerr.ErrDocumentNotFound
}

func (r *fakeDocumentRepo) ListByFolder(clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error) {
	return nil, 0, nil
}

func (r *fakeDocumentRepo) ListVersions(rootID string) ([]models.DocumentFile, error) {
	return nil, nil
}

func (r *fakeDocumentRepo) Search(params repositories.DocumentSearchParams) ([]models.DocumentFile, int64, error) {
	return nil, 0, nil
}

func (r *fakeDocumentRepo) Update(doc *models.DocumentFile) error {
	r.put(doc)
	return nil
}

func (r *fakeDocumentRepo) ClearCurrentFlag(tx *gorm.DB, rootID string) (int64, error) {
	return 0, nil
}

func (r *fakeDocumentRepo) TouchAccess(id string) error { return nil }

func (r *fakeDocumentRepo) UpdateScanStatus(id, from, to string, result *string) (bool, error) {
	return false, nil
}

func (r *fakeDocumentRepo) UpdateProcessingStatus(id, from, to string) (bool, error) {
	return false, nil
}

func (r *fakeDocumentRepo) CountByFolder(folderID string) (int64, error) { return 0, nil }

func (r *fakeDocumentRepo) DeleteVersions(tx *gorm.DB, rootID string) error { return nil }

func (r *fakeDocumentRepo) StatsByClient(clientID string) (*repositories.DocumentStats, error) {
	return &repositories.DocumentStats{}, nil
}

var _ repositories.DocumentRepository = (*fakeDocumentRepo)(nil)

type fakeStorage struct{}

func (fakeStorage) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (storage.PutObjectResult, error) {
	return storage.PutObjectResult{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func (fakeStorage) GetObject(ctx context.Context, bucketName, objectName string) (storage.GetObjectResult, error) {
	return storage.GetObjectResult{}, storage.ErrObjectNotFound
}

func (fakeStorage) StatObject(ctx context.Context, bucketName, objectName string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: objectName}, nil
}

func (fakeStorage) RemoveObject(ctx context.Context, bucketName, objectName string) error {
	return nil
}

func (fakeStorage) PresignedPutURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	return "https://storage.test/put/" + objectName, nil
}

func (fakeStorage) PresignedGetURL(ctx context.Context, bucketName, objectName, downloadName string, expiry time.Duration) (string, error) {
	return "https://storage.test/get/" + objectName, nil
}

func (fakeStorage) IsBucketExist(ctx context.Context, bucketName string) (bool, error) {
	return true, nil
}

func (fakeStorage) MakeBucket(ctx context.Context, bucketName string) error { return nil }

var _ storage.ObjectStorage = (*fakeStorage)(nil)

// fakeCache 内存限流计数器
type fakeCache struct {
	mu       sync.Mutex
	counters map[string]int64
	failIncr bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{counters: make(map[string]int64)}
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return nil
}

func (c *fakeCache) Get(ctx context.Context, key string, target any) error {
	return xerr.ErrEmptyCache
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error { return nil }

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (c *fakeCache) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failIncr {
		return 0, context.DeadlineExceeded
	}
	c.counters[key]++
	return c.counters[key], nil
}

func (c *fakeCache) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func (c *fakeCache) TTL(ctx context.Context, key string) (time.Duration, error) { return 0, nil }

type fakeRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *fakeRecorder) Record(entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *fakeRecorder) ListByDocument(ctx context.Context, documentID string, limit int) ([]models.DocumentAccessLog, error) {
	return nil, nil
}

func (r *fakeRecorder) Close() {}

func (r *fakeRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Type: "minio", PresignedGetExpiry: 60},
		RateLimit: config.RateLimitConfig{
			Enabled:          true,
			RequestsPerMin:   120,
			PasswordAttempts: 3,
		},
	}
}

type shareFixture struct {
	service   ShareService
	shareRepo *fakeShareRepo
	docRepo   *fakeDocumentRepo
	cache     *fakeCache
	recorder  *fakeRecorder
	doc       *models.DocumentFile
	actor     utils.ActorContext
}

func newShareFixture(t *testing.T) *shareFixture {
	t.Helper()
	shareRepo := newFakeShareRepo()
	docRepo := newFakeDocumentRepo()
	c := newFakeCache()
	rec := &fakeRecorder{}

	doc := &models.DocumentFile{
		ID:              uuid.NewString(),
		ClientID:        "client-1",
		OriginalName:    "tax-return-2025.pdf",
		StoragePath:     "clients/client-1/123/tax-return-2025.pdf",
		StorageBucket:   "docvault",
		VirusScanStatus: models.ScanStatusClean,
	}
	docRepo.put(doc)

	return &shareFixture{
		service:   NewShareService(shareRepo, docRepo, fakeStorage{}, c, rec, testConfig()),
		shareRepo: shareRepo,
		docRepo:   docRepo,
		cache:     c,
		recorder:  rec,
		doc:       doc,
		actor:     utils.ActorContext{ActorID: "staff-1", ActorType: utils.ActorTypeStaff},
	}
}

func (f *shareFixture) createShare(t *testing.T, input CreateShareInput) *models.DocumentShare {
	t.Helper()
	if input.DocumentID == "" {
		input.DocumentID = f.doc.ID
	}
	if input.SharedWithUserID == nil && input.SharedWithEmail == nil {
		input.IsPublicLink = true
	}
	created, err := f.service.CreateShare(context.Background(), f.actor, input)
	require.NoError(t, err)
	return created
}

func TestCreateShareGeneratesToken(t *testing.T) {
	f := newShareFixture(t)

	created := f.createShare(t, CreateShareInput{CanView: true, CanDownload: true})
	assert.NotEmpty(t, created.ShareToken)
	assert.Equal(t, f.doc.ClientID, created.ClientID)
	assert.Contains(t, f.recorder.actions(), models.AccessActionShare)
}

func TestCreateShareRejectsPastExpiry(t *testing.T) {
	f := newShareFixture(t)

	past := time.Now().Add(-time.Hour)
	_, err := f.service.CreateShare(context.Background(), f.actor, CreateShareInput{
		DocumentID:   f.doc.ID,
		ExpiresAt:    &past,
		IsPublicLink: true,
		CanView:      true,
	})
	assert.ErrorIs(t, err, xerr.ErrValidation)
}

func TestCreateShareRejectsNonPositiveQuota(t *testing.T) {
	f := newShareFixture(t)

	zero := 0
	_, err := f.service.CreateShare(context.Background(), f.actor, CreateShareInput{
		DocumentID:   f.doc.ID,
		MaxDownloads: &zero,
		IsPublicLink: true,
		CanView:      true,
	})
	assert.ErrorIs(t, err, xerr.ErrValidation)
}

func TestCreateShareGranteeRules(t *testing.T) {
	f := newShareFixture(t)
	userID := "user-7"

	// 既不指定受让人也不是公共链接
	_, err := f.service.CreateShare(context.Background(), f.actor, CreateShareInput{
		DocumentID: f.doc.ID,
		CanView:    true,
	})
	assert.ErrorIs(t, err, xerr.ErrValidation)

	// 公共链接不能同时绑定具体受让人
	_, err = f.service.CreateShare(context.Background(), f.actor, CreateShareInput{
		DocumentID:       f.doc.ID,
		IsPublicLink:     true,
		SharedWithUserID: &userID,
		CanView:          true,
	})
	assert.ErrorIs(t, err, xerr.ErrValidation)

	// 用户和邮箱只能二选一
	email := "partner@example.com"
	_, err = f.service.CreateShare(context.Background(), f.actor, CreateShareInput{
		DocumentID:       f.doc.ID,
		SharedWithUserID: &userID,
		SharedWithEmail:  &email,
		CanView:          true,
	})
	assert.ErrorIs(t, err, xerr.ErrValidation)

	// 指定用户的定向分享合法
	created, err := f.service.CreateShare(context.Background(), f.actor, CreateShareInput{
		DocumentID:       f.doc.ID,
		SharedWithUserID: &userID,
		CanView:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, userID, *created.SharedWithUserID)
}

func TestViewViaTokenUnknownToken(t *testing.T) {
	f := newShareFixture(t)

	_, err := f.service.ViewViaToken(context.Background(), "no-such-token", ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrShareNotFound)
}

func TestViewViaTokenRevoked(t *testing.T) {
	f := newShareFixture(t)
	created := f.createShare(t, CreateShareInput{CanView: true})

	require.NoError(t, f.service.RevokeShare(context.Background(), f.actor, created.ID))

	_, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrShareRevoked)
}

func TestViewViaTokenExpired(t *testing.T) {
	f := newShareFixture(t)
	soon := time.Now().Add(50 * time.Millisecond)
	created := f.createShare(t, CreateShareInput{CanView: true, ExpiresAt: &soon})

	time.Sleep(100 * time.Millisecond)

	_, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrShareExpired)
}

func TestViewViaTokenPasswordFlow(t *testing.T) {
	f := newShareFixture(t)
	password := "correct-horse"
	created := f.createShare(t, CreateShareInput{CanView: true, Password: &password})

	// 缺密码
	_, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrSharePasswordRequired)

	// 错密码
	_, err = f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{Password: "wrong"})
	assert.ErrorIs(t, err, xerr.ErrSharePasswordIncorrect)

	// 对密码
	doc, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{Password: password})
	require.NoError(t, err)
	assert.Equal(t, f.doc.ID, doc.ID)

	// 带密码的分享会把文档标记为受密码保护
	reloaded, err := f.docRepo.FindByID(f.doc.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.PasswordProtected)
}

func TestViewViaTokenPasswordThrottle(t *testing.T) {
	f := newShareFixture(t)
	password := "correct-horse"
	created := f.createShare(t, CreateShareInput{CanView: true, Password: &password})

	// 配置上限为3次，超过后即便密码正确也被拒
	for i := 0; i < 3; i++ {
		_, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{Password: "wrong"})
		assert.ErrorIs(t, err, xerr.ErrSharePasswordIncorrect)
	}
	_, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{Password: password})
	assert.ErrorIs(t, err, xerr.ErrTooManyAttempts)
}

func TestViewViaTokenThrottleFailsOpen(t *testing.T) {
	f := newShareFixture(t)
	password := "correct-horse"
	created := f.createShare(t, CreateShareInput{CanView: true, Password: &password})

	// 限流器故障不应把分享一并打挂
	f.cache.failIncr = true
	_, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{Password: password})
	assert.NoError(t, err)
}

func TestDownloadViaTokenPermissionBit(t *testing.T) {
	f := newShareFixture(t)
	created := f.createShare(t, CreateShareInput{CanView: true, CanDownload: false})

	// 查看放行，下载被权限位拦下
	_, err := f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.NoError(t, err)

	_, err = f.service.DownloadViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
}

func TestDownloadViaTokenInfectedBlocked(t *testing.T) {
	f := newShareFixture(t)
	created := f.createShare(t, CreateShareInput{CanView: true, CanDownload: true})

	infected := f.doc
	infected.VirusScanStatus = models.ScanStatusInfected
	f.docRepo.put(infected)

	_, err := f.service.DownloadViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrContentBlocked)

	// 拦截发生在配额占用之前
	reloaded, err := f.shareRepo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.DownloadCount)
}

func TestDownloadViaTokenQuotaExhausted(t *testing.T) {
	f := newShareFixture(t)
	max := 2
	created := f.createShare(t, CreateShareInput{CanView: true, CanDownload: true, MaxDownloads: &max})

	for i := 0; i < 2; i++ {
		url, err := f.service.DownloadViaToken(context.Background(), created.ShareToken, ShareAccess{})
		require.NoError(t, err)
		assert.NotEmpty(t, url)
	}

	_, err := f.service.DownloadViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrDownloadLimitReached)
}

// 配额用尽后分享整体失效，查看同样被拒
func TestViewViaTokenQuotaExhausted(t *testing.T) {
	f := newShareFixture(t)
	max := 1
	created := f.createShare(t, CreateShareInput{CanView: true, CanDownload: true, MaxDownloads: &max})

	url, err := f.service.DownloadViaToken(context.Background(), created.ShareToken, ShareAccess{})
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	_, err = f.service.ViewViaToken(context.Background(), created.ShareToken, ShareAccess{})
	assert.ErrorIs(t, err, xerr.ErrDownloadLimitReached)

	// 拒绝不占用计数
	reloaded, err := f.shareRepo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.DownloadCount)
}

// 并发抢占 max_downloads=1 的配额，必须恰好一个成功
func TestDownloadViaTokenConcurrentQuota(t *testing.T) {
	f := newShareFixture(t)
	max := 1
	created := f.createShare(t, CreateShareInput{CanView: true, CanDownload: true, MaxDownloads: &max})

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.DownloadViaToken(context.Background(), created.ShareToken, ShareAccess{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, limited := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case err == xerr.ErrDownloadLimitReached:
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, limited)

	reloaded, err := f.shareRepo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.DownloadCount)
}

func TestRevokeShareIdempotent(t *testing.T) {
	f := newShareFixture(t)
	created := f.createShare(t, CreateShareInput{CanView: true})

	require.NoError(t, f.service.RevokeShare(context.Background(), f.actor, created.ID))
	first, err := f.shareRepo.FindByID(created.ID)
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)

	// 二次撤销不报错，首次落章信息保持不变
	require.NoError(t, f.service.RevokeShare(context.Background(), f.actor, created.ID))
	second, err := f.shareRepo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, first.RevokedAt.UnixNano(), second.RevokedAt.UnixNano())
}

func TestRevokeShareTenantIsolation(t *testing.T) {
	f := newShareFixture(t)
	created := f.createShare(t, CreateShareInput{CanView: true})

	outsider := utils.ActorContext{ActorID: "client-user", ActorType: utils.ActorTypeClient, ClientID: "client-2"}
	err := f.service.RevokeShare(context.Background(), outsider, created.ID)
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
}
