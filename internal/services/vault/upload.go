package vault

import (
	"context"
	"errors"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadSession 上传会话，整个生命周期只存在于 Redis
type UploadSession struct {
	ID               string    `json:"id"`
	ClientID         string    `json:"client_id"`
	ActorID          string    `json:"actor_id"`
	FolderID         *string   `json:"folder_id,omitempty"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	MimeType         string    `json:"mime_type"`
	DeclaredChecksum string    `json:"declared_checksum"`
	StoragePath      string    `json:"storage_path"`
	Bucket           string    `json:"bucket"`
	DocumentType     string    `json:"document_type"`
	TaxYear          *int      `json:"tax_year,omitempty"`
	Category         *string   `json:"category,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	AccessLevel      string    `json:"access_level"`
	// 非空表示这次上传是给既有文档追加新版本
	TargetDocumentID *string   `json:"target_document_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RequestUploadInput 申请上传目标的输入
type RequestUploadInput struct {
	ClientID     string
	FolderID     *string
	FileName     string
	FileSize     int64
	MimeType     string
	Checksum     string
	DocumentType string
	TaxYear      *int
	Category     *string
	Tags         []string
	AccessLevel  string
	// 追加版本时传目标文档ID
	TargetDocumentID *string
}

// UploadTarget 返回给客户端的直传凭证
type UploadTarget struct {
	SessionID string    `json:"session_id"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UploadService interface {
	// RequestUploadTarget 先做限额校验再发会话和预签名URL，不合规的请求不产生任何副作用
	RequestUploadTarget(ctx context.Context, actor utils.ActorContext, input RequestUploadInput) (*UploadTarget, error)
	// FinalizeUpload 确认直传完成：核对对象、复算校验和、落元数据
	FinalizeUpload(ctx context.Context, actor utils.ActorContext, sessionID string) (*models.DocumentFile, error)
	// AbandonUpload 主动放弃会话并清理已传对象
	AbandonUpload(ctx context.Context, actor utils.ActorContext, sessionID string) error
}

type uploadService struct {
	documentService DocumentService
	objectStorage   storage.ObjectStorage
	cache           cache.Cache
	cfg             *config.Config
}

var _ UploadService = (*uploadService)(nil)

// NewUploadService 创建一个新的上传服务实例
func NewUploadService(
	documentService DocumentService,
	objectStorage storage.ObjectStorage,
	c cache.Cache,
	cfg *config.Config,
) UploadService {
	return &uploadService{
		documentService: documentService,
		objectStorage:   objectStorage,
		cache:           c,
		cfg:             cfg,
	}
}

func (s *uploadService) sessionTTL() time.Duration {
	return time.Duration(s.cfg.Upload.SessionTTLHours) * time.Hour
}

func (s *uploadService) bucketName() string {
	if s.cfg.Storage.Type == "aliyun_oss" {
		return s.cfg.AliyunOSS.BucketName
	}
	return s.cfg.MinIO.BucketName
}

func (s *uploadService) RequestUploadTarget(ctx context.Context, actor utils.ActorContext, input RequestUploadInput) (*UploadTarget, error) {
	if err := requireClientAccess(actor, input.ClientID); err != nil {
		return nil, err
	}
	// 限额检查必须发生在任何传输之前
	if err := checkFileName(input.FileName); err != nil {
		return nil, err
	}
	if input.FileSize <= 0 {
		return nil, xerr.ErrValidation
	}
	if input.FileSize > s.cfg.Upload.MaxFileSize {
		return nil, xerr.ErrFileTooLarge
	}
	if len(s.cfg.Upload.AllowedMimeTypes) > 0 && !mimeAllowed(input.MimeType, s.cfg.Upload.AllowedMimeTypes) {
		return nil, xerr.ErrUnsupportedType
	}
	if !utils.IsValidSHA256Hex(input.Checksum) {
		return nil, xerr.ErrChecksumMalformed
	}

	session := &UploadSession{
		ID:               uuid.NewString(),
		ClientID:         input.ClientID,
		ActorID:          actor.ActorID,
		FolderID:         input.FolderID,
		FileName:         input.FileName,
		FileSize:         input.FileSize,
		MimeType:         input.MimeType,
		DeclaredChecksum: utils.NormalizeChecksum(input.Checksum),
		StoragePath:      storage.BuildUploadPath(input.ClientID, input.FileName),
		Bucket:           s.bucketName(),
		DocumentType:     input.DocumentType,
		TaxYear:          input.TaxYear,
		Category:         input.Category,
		Tags:             input.Tags,
		AccessLevel:      input.AccessLevel,
		TargetDocumentID: input.TargetDocumentID,
		CreatedAt:        time.Now(),
	}

	putExpiry := time.Duration(s.cfg.Storage.PresignedPutExpiry) * time.Minute
	uploadURL, err := s.objectStorage.PresignedPutURL(ctx, session.Bucket, session.StoragePath, putExpiry)
	if err != nil {
		logger.Error("Failed to create presigned upload URL",
			zap.String("clientID", input.ClientID), zap.Error(err))
		return nil, xerr.ErrStorageUnavailable
	}

	if err := s.cache.Set(ctx, cache.GenerateUploadSessionKey(session.ID), session, s.sessionTTL()); err != nil {
		return nil, err
	}

	logger.Info("Upload target issued",
		zap.String("sessionID", session.ID), zap.String("clientID", input.ClientID),
		zap.String("storagePath", session.StoragePath))
	return &UploadTarget{
		SessionID: session.ID,
		UploadURL: uploadURL,
		ExpiresAt: time.Now().Add(putExpiry),
	}, nil
}

func (s *uploadService) loadSession(ctx context.Context, actor utils.ActorContext, sessionID string) (*UploadSession, error) {
	var session UploadSession
	err := s.cache.Get(ctx, cache.GenerateUploadSessionKey(sessionID), &session)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, xerr.ErrUploadSessionGone
		}
		return nil, err
	}
	if err := requireClientAccess(actor, session.ClientID); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *uploadService) FinalizeUpload(ctx context.Context, actor utils.ActorContext, sessionID string) (*models.DocumentFile, error) {
	session, err := s.loadSession(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}

	// 对象必须已经通过预签名URL传完；stat 是幂等读，瞬时故障重试一次
	info, err := s.objectStorage.StatObject(ctx, session.Bucket, session.StoragePath)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		info, err = s.objectStorage.StatObject(ctx, session.Bucket, session.StoragePath)
	}
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, xerr.ErrValidation
		}
		return nil, xerr.ErrStorageUnavailable
	}
	if info.Size != session.FileSize {
		s.discardObject(ctx, session)
		return nil, xerr.ErrIntegrityMismatch
	}

	checksumVerified := false
	if s.cfg.Upload.VerifyChecksum {
		// 服务端流式复算 SHA-256，声明值只作对照，不作信任依据
		obj, err := s.objectStorage.GetObject(ctx, session.Bucket, session.StoragePath)
		if err != nil {
			return nil, xerr.ErrStorageUnavailable
		}
		actual, hashErr := utils.CalculateSHA256(obj.Reader)
		obj.Reader.Close()
		if hashErr != nil {
			return nil, xerr.ErrStorageUnavailable
		}
		if actual != session.DeclaredChecksum {
			s.discardObject(ctx, session)
			logger.Warn("Upload checksum mismatch",
				zap.String("sessionID", session.ID),
				zap.String("declared", session.DeclaredChecksum), zap.String("actual", actual))
			return nil, xerr.ErrIntegrityMismatch
		}
		checksumVerified = true
	}

	var doc *models.DocumentFile
	if session.TargetDocumentID != nil {
		doc, err = s.documentService.CreateNewVersion(ctx, actor, *session.TargetDocumentID, NewVersionInput{
			FileName:         session.FileName,
			StoragePath:      session.StoragePath,
			StorageBucket:    session.Bucket,
			FileSize:         session.FileSize,
			MimeType:         session.MimeType,
			Checksum:         session.DeclaredChecksum,
			ChecksumVerified: checksumVerified,
		})
	} else {
		doc, err = s.documentService.RegisterDocument(ctx, actor, RegisterDocumentInput{
			ClientID:         session.ClientID,
			FolderID:         session.FolderID,
			FileName:         session.FileName,
			StoragePath:      session.StoragePath,
			StorageBucket:    session.Bucket,
			FileSize:         session.FileSize,
			MimeType:         session.MimeType,
			Checksum:         session.DeclaredChecksum,
			ChecksumVerified: checksumVerified,
			DocumentType:     session.DocumentType,
			TaxYear:          session.TaxYear,
			Category:         session.Category,
			Tags:             session.Tags,
			AccessLevel:      session.AccessLevel,
		})
	}
	if err != nil {
		return nil, err
	}

	// 会话一次性使用；并发重复 finalize 由 storage_path 的唯一索引兜底
	if delErr := s.cache.Del(ctx, cache.GenerateUploadSessionKey(session.ID)); delErr != nil {
		logger.Warn("Failed to delete upload session", zap.String("sessionID", session.ID), zap.Error(delErr))
	}

	logger.Info("Upload finalized",
		zap.String("sessionID", session.ID), zap.String("documentID", doc.ID),
		zap.Bool("checksumVerified", checksumVerified))
	return doc, nil
}

func (s *uploadService) AbandonUpload(ctx context.Context, actor utils.ActorContext, sessionID string) error {
	session, err := s.loadSession(ctx, actor, sessionID)
	if err != nil {
		if errors.Is(err, xerr.ErrUploadSessionGone) {
			// 会话已过期，放弃是幂等的
			return nil
		}
		return err
	}
	s.discardObject(ctx, session)
	return s.cache.Del(ctx, cache.GenerateUploadSessionKey(session.ID))
}

// discardObject 清理半途而废的上传对象，失败只记日志
func (s *uploadService) discardObject(ctx context.Context, session *UploadSession) {
	if err := s.objectStorage.RemoveObject(ctx, session.Bucket, session.StoragePath); err != nil {
		logger.Warn("Failed to remove abandoned upload object",
			zap.String("sessionID", session.ID), zap.String("storagePath", session.StoragePath), zap.Error(err))
	}
}
