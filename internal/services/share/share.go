package share

import (
	"context"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/clearledger/go-docvault/internal/services/audit"
	"go.uber.org/zap"
)

// CreateShareInput 创建分享的输入
type CreateShareInput struct {
	DocumentID       string
	SharedWithUserID *string
	SharedWithEmail  *string
	ShareType        string
	ExpiresAt        *time.Time
	Password         *string
	MaxDownloads     *int
	IsPublicLink     bool
	CanView          bool
	CanDownload      bool
	CanComment       bool
	CanEdit          bool
}

// ShareAccess 一次匿名访问的来源信息，用于审计
type ShareAccess struct {
	Password  string
	IPAddress string
	UserAgent string
	SessionID string
}

type ShareService interface {
	CreateShare(ctx context.Context, actor utils.ActorContext, input CreateShareInput) (*models.DocumentShare, error)
	ListShares(ctx context.Context, actor utils.ActorContext, documentID string) ([]models.DocumentShare, error)
	ListClientShares(ctx context.Context, actor utils.ActorContext, clientID string, page, pageSize int) ([]models.DocumentShare, int64, error)
	// RevokeShare 幂等撤销，重复撤销不报错也不覆盖首次撤销信息
	RevokeShare(ctx context.Context, actor utils.ActorContext, shareID string) error
	// ViewViaToken 凭令牌查看文档元数据，走完整的访问判定链
	ViewViaToken(ctx context.Context, token string, access ShareAccess) (*models.DocumentFile, error)
	// DownloadViaToken 凭令牌下载：判定链之后原子占用下载配额，返回限时URL
	DownloadViaToken(ctx context.Context, token string, access ShareAccess) (string, error)
}

type shareService struct {
	shareRepo     repositories.ShareRepository
	documentRepo  repositories.DocumentRepository
	objectStorage storage.ObjectStorage
	cache         cache.Cache
	recorder      audit.Recorder
	cfg           *config.Config
}

var _ ShareService = (*shareService)(nil)

// NewShareService 创建一个新的分享服务实例
func NewShareService(
	shareRepo repositories.ShareRepository,
	documentRepo repositories.DocumentRepository,
	objectStorage storage.ObjectStorage,
	c cache.Cache,
	recorder audit.Recorder,
	cfg *config.Config,
) ShareService {
	return &shareService{
		shareRepo:     shareRepo,
		documentRepo:  documentRepo,
		objectStorage: objectStorage,
		cache:         c,
		recorder:      recorder,
		cfg:           cfg,
	}
}

func (s *shareService) CreateShare(ctx context.Context, actor utils.ActorContext, input CreateShareInput) (*models.DocumentShare, error) {
	doc, err := s.documentRepo.FindByID(input.DocumentID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessClient(doc.ClientID) {
		return nil, xerr.ErrPermissionDenied
	}
	// 受让方必须恰好是公共链接、指定用户、指定邮箱三者之一
	targeted := 0
	if input.SharedWithUserID != nil {
		targeted++
	}
	if input.SharedWithEmail != nil {
		targeted++
	}
	if !input.IsPublicLink && targeted == 0 {
		return nil, xerr.ErrValidation
	}
	if input.IsPublicLink && targeted > 0 {
		return nil, xerr.ErrValidation
	}
	if targeted > 1 {
		return nil, xerr.ErrValidation
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now()) {
		return nil, xerr.ErrValidation
	}
	if input.MaxDownloads != nil && *input.MaxDownloads <= 0 {
		return nil, xerr.ErrValidation
	}
	if input.ShareType == "" {
		input.ShareType = models.ShareTypeView
	}

	token, err := utils.GenerateShareToken()
	if err != nil {
		return nil, err
	}

	var passwordHash *string
	if input.Password != nil && *input.Password != "" {
		hashed, err := utils.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = &hashed
	}

	share := &models.DocumentShare{
		DocumentID:       doc.ID,
		ClientID:         doc.ClientID,
		SharedWithUserID: input.SharedWithUserID,
		SharedWithEmail:  input.SharedWithEmail,
		ShareType:        input.ShareType,
		ExpiresAt:        input.ExpiresAt,
		PasswordHash:     passwordHash,
		MaxDownloads:     input.MaxDownloads,
		ShareToken:       token,
		IsPublicLink:     input.IsPublicLink,
		CanView:          input.CanView,
		CanDownload:      input.CanDownload,
		CanComment:       input.CanComment,
		CanEdit:          input.CanEdit,
		CreatedBy:        actor.ActorID,
	}
	if err := s.shareRepo.Create(share); err != nil {
		return nil, err
	}

	// 文档上打密码保护标记，列表页免查分享表
	if passwordHash != nil && !doc.PasswordProtected {
		doc.PasswordProtected = true
		if err := s.documentRepo.Update(doc); err != nil {
			logger.Warn("Failed to flag document as password protected",
				zap.String("documentID", doc.ID), zap.Error(err))
		}
	}

	s.recorder.Record(audit.Entry{
		DocumentID: doc.ID,
		ClientID:   doc.ClientID,
		UserID:     &actor.ActorID,
		ShareID:    &share.ID,
		Action:     models.AccessActionShare,
	})
	logger.Info("Share created",
		zap.String("shareID", share.ID), zap.String("documentID", doc.ID),
		zap.Bool("passwordProtected", passwordHash != nil))
	return share, nil
}

func (s *shareService) ListShares(ctx context.Context, actor utils.ActorContext, documentID string) ([]models.DocumentShare, error) {
	doc, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessClient(doc.ClientID) {
		return nil, xerr.ErrPermissionDenied
	}
	return s.shareRepo.ListByDocument(documentID)
}

func (s *shareService) ListClientShares(ctx context.Context, actor utils.ActorContext, clientID string, page, pageSize int) ([]models.DocumentShare, int64, error) {
	if !actor.CanAccessClient(clientID) {
		return nil, 0, xerr.ErrPermissionDenied
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.shareRepo.ListByClient(clientID, page, pageSize)
}

func (s *shareService) RevokeShare(ctx context.Context, actor utils.ActorContext, shareID string) error {
	share, err := s.shareRepo.FindByID(shareID)
	if err != nil {
		return err
	}
	if !actor.CanAccessClient(share.ClientID) {
		return xerr.ErrPermissionDenied
	}

	applied, err := s.shareRepo.Revoke(shareID, actor.ActorID)
	if err != nil {
		return err
	}
	if applied {
		logger.Info("Share revoked", zap.String("shareID", shareID), zap.String("revokedBy", actor.ActorID))
	}
	return nil
}

// resolveToken 按固定顺序执行访问判定链：
// 令牌查找 → 撤销 → 过期 → 密码 → 权限位
// 下载还要追加感染检查和配额占用，由调用方完成
func (s *shareService) resolveToken(ctx context.Context, token string, access ShareAccess, action string) (*models.DocumentShare, *models.DocumentFile, error) {
	share, err := s.shareRepo.FindByToken(token)
	if err != nil {
		return nil, nil, err
	}
	if share.Revoked() {
		return nil, nil, xerr.ErrShareRevoked
	}
	if share.Expired(time.Now()) {
		return nil, nil, xerr.ErrShareExpired
	}
	// 配额用尽的分享整体失效，查看也不放行
	if share.DownloadsExhausted() {
		return nil, nil, xerr.ErrDownloadLimitReached
	}

	if share.PasswordHash != nil {
		if access.Password == "" {
			return nil, nil, xerr.ErrSharePasswordRequired
		}
		if err := s.throttlePasswordAttempts(ctx, token); err != nil {
			return nil, nil, err
		}
		if !utils.CheckPasswordHash(access.Password, *share.PasswordHash) {
			return nil, nil, xerr.ErrSharePasswordIncorrect
		}
	}

	if !share.Permits(action) {
		return nil, nil, xerr.ErrPermissionDenied
	}

	doc, err := s.documentRepo.FindByID(share.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	return share, doc, nil
}

// throttlePasswordAttempts 每个令牌一小时内的密码尝试次数受限，防在线爆破
func (s *shareService) throttlePasswordAttempts(ctx context.Context, token string) error {
	if !s.cfg.RateLimit.Enabled {
		return nil
	}
	count, err := s.cache.IncrWithTTL(ctx, cache.GeneratePasswordAttemptKey(token), time.Hour)
	if err != nil {
		// 限流器故障时放行，不让 Redis 故障演变成分享不可用
		logger.Warn("Password attempt throttle unavailable", zap.Error(err))
		return nil
	}
	if count > int64(s.cfg.RateLimit.PasswordAttempts) {
		return xerr.ErrTooManyAttempts
	}
	return nil
}

func (s *shareService) auditEntry(share *models.DocumentShare, access ShareAccess, action string) audit.Entry {
	entry := audit.Entry{
		DocumentID: share.DocumentID,
		ClientID:   share.ClientID,
		ShareID:    &share.ID,
		Action:     action,
	}
	if access.IPAddress != "" {
		entry.IPAddress = &access.IPAddress
	}
	if access.UserAgent != "" {
		entry.UserAgent = &access.UserAgent
	}
	if access.SessionID != "" {
		entry.SessionID = &access.SessionID
	}
	return entry
}

func (s *shareService) ViewViaToken(ctx context.Context, token string, access ShareAccess) (*models.DocumentFile, error) {
	share, doc, err := s.resolveToken(ctx, token, access, models.ShareActionView)
	if err != nil {
		return nil, err
	}

	if err := s.shareRepo.TouchAccess(share.ID); err != nil {
		logger.Warn("Failed to touch share access", zap.String("shareID", share.ID), zap.Error(err))
	}
	s.recorder.Record(s.auditEntry(share, access, models.AccessActionView))
	return doc, nil
}

func (s *shareService) DownloadViaToken(ctx context.Context, token string, access ShareAccess) (string, error) {
	share, doc, err := s.resolveToken(ctx, token, access, models.ShareActionDownload)
	if err != nil {
		return "", err
	}

	// 感染文件无论权限如何都不提供内容
	if !doc.Downloadable() {
		return "", xerr.ErrContentBlocked
	}

	// 条件 UPDATE 原子占用配额：并发压力下成功次数不会超过 max_downloads
	granted, err := s.shareRepo.IncrementDownloadCount(share.ID)
	if err != nil {
		return "", err
	}
	if !granted {
		return "", xerr.ErrDownloadLimitReached
	}

	expiry := time.Duration(s.cfg.Storage.PresignedGetExpiry) * time.Minute
	url, err := s.objectStorage.PresignedGetURL(ctx, doc.StorageBucket, doc.StoragePath, doc.OriginalName, expiry)
	if err != nil {
		// 配额已消耗但URL签发失败，记错误返回存储故障，不回滚计数
		logger.Error("Failed to sign download URL after quota grant",
			zap.String("shareID", share.ID), zap.Error(err))
		return "", xerr.ErrStorageUnavailable
	}

	if err := s.shareRepo.TouchAccess(share.ID); err != nil {
		logger.Warn("Failed to touch share access", zap.String("shareID", share.ID), zap.Error(err))
	}
	if err := s.documentRepo.TouchAccess(doc.ID); err != nil {
		logger.Warn("Failed to touch document access", zap.String("documentID", doc.ID), zap.Error(err))
	}
	s.recorder.Record(s.auditEntry(share, access, models.AccessActionDownload))
	return url, nil
}
