package vault

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/mq"
	"github.com/clearledger/go-docvault/internal/pkg/search"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterDocumentInput 注册文档元数据的输入，对象内容已在存储桶内
type RegisterDocumentInput struct {
	ClientID         string
	FolderID         *string
	FileName         string
	StoragePath      string
	StorageBucket    string
	FileSize         int64
	MimeType         string
	Checksum         string
	ChecksumVerified bool
	DocumentType     string
	TaxYear          *int
	Category         *string
	Tags             []string
	AccessLevel      string
}

// NewVersionInput 追加新版本的输入
type NewVersionInput struct {
	FileName         string
	StoragePath      string
	StorageBucket    string
	FileSize         int64
	MimeType         string
	Checksum         string
	ChecksumVerified bool
}

// UpdateMetadataInput 可更新的元数据字段，nil 表示不修改
type UpdateMetadataInput struct {
	FolderID     *string
	ClearFolder  bool
	DocumentType *string
	TaxYear      *int
	Category     *string
	Tags         []string
	AccessLevel  *string
}

// SearchInput 对外暴露的检索条件
type SearchInput struct {
	ClientID        string
	FolderID        *string
	DocumentType    *string
	AccessLevel     *string
	VirusScanStatus *string
	Tag             *string
	TaxYear         *int
	UploadedBy      *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Query           string
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}

type DocumentService interface {
	RegisterDocument(ctx context.Context, actor utils.ActorContext, input RegisterDocumentInput) (*models.DocumentFile, error)
	CreateNewVersion(ctx context.Context, actor utils.ActorContext, documentID string, input NewVersionInput) (*models.DocumentFile, error)
	GetDocument(ctx context.Context, actor utils.ActorContext, documentID string) (*models.DocumentFile, error)
	ListDocuments(ctx context.Context, actor utils.ActorContext, clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error)
	SearchDocuments(ctx context.Context, actor utils.ActorContext, input SearchInput) ([]models.DocumentFile, int64, error)
	ListVersions(ctx context.Context, actor utils.ActorContext, documentID string) ([]models.DocumentFile, error)
	UpdateMetadata(ctx context.Context, actor utils.ActorContext, documentID string, input UpdateMetadataInput) (*models.DocumentFile, error)
	// DeleteDocument 硬删除整条版本链，级联撤销分享并清理评论，访问日志保留
	DeleteDocument(ctx context.Context, actor utils.ActorContext, documentID string) error
	// GetDownloadURL 生成限时预签名下载链接，感染文件一律拒绝
	GetDownloadURL(ctx context.Context, actor utils.ActorContext, documentID string) (string, error)
	GetStats(ctx context.Context, actor utils.ActorContext, clientID string) (*repositories.DocumentStats, error)
	// TouchView 记录一次查看：更新访问时间和计数
	TouchView(ctx context.Context, actor utils.ActorContext, documentID string) error
}

type documentService struct {
	documentRepo       repositories.DocumentRepository
	folderRepo         repositories.FolderRepository
	shareRepo          repositories.ShareRepository
	commentRepo        repositories.CommentRepository
	transactionManager TransactionManager
	objectStorage      storage.ObjectStorage
	mqClient           *mq.RabbitMQClient
	indexer            search.DocumentIndexer
	cfg                *config.Config
}

var _ DocumentService = (*documentService)(nil)

// NewDocumentService 创建一个新的文档服务实例
func NewDocumentService(
	documentRepo repositories.DocumentRepository,
	folderRepo repositories.FolderRepository,
	shareRepo repositories.ShareRepository,
	commentRepo repositories.CommentRepository,
	transactionManager TransactionManager,
	objectStorage storage.ObjectStorage,
	mqClient *mq.RabbitMQClient,
	indexer search.DocumentIndexer,
	cfg *config.Config,
) DocumentService {
	return &documentService{
		documentRepo:       documentRepo,
		folderRepo:         folderRepo,
		shareRepo:          shareRepo,
		commentRepo:        commentRepo,
		transactionManager: transactionManager,
		objectStorage:      objectStorage,
		mqClient:           mqClient,
		indexer:            indexer,
		cfg:                cfg,
	}
}

func (s *documentService) validateRegisterInput(input *RegisterDocumentInput) error {
	if err := checkFileName(input.FileName); err != nil {
		return err
	}
	if input.FileSize <= 0 {
		return xerr.ErrValidation
	}
	if input.FileSize > s.cfg.Upload.MaxFileSize {
		return xerr.ErrFileTooLarge
	}
	if !utils.IsValidSHA256Hex(input.Checksum) {
		return xerr.ErrChecksumMalformed
	}
	input.Checksum = utils.NormalizeChecksum(input.Checksum)
	if input.DocumentType == "" {
		input.DocumentType = models.DocTypeGeneral
	}
	if !models.IsValidDocumentType(input.DocumentType) {
		return xerr.ErrValidation
	}
	if input.AccessLevel == "" {
		input.AccessLevel = models.AccessLevelPrivate
	}
	if !models.IsValidAccessLevel(input.AccessLevel) {
		return xerr.ErrValidation
	}
	if len(s.cfg.Upload.AllowedMimeTypes) > 0 && !mimeAllowed(input.MimeType, s.cfg.Upload.AllowedMimeTypes) {
		return xerr.ErrUnsupportedType
	}
	return nil
}

func (s *documentService) RegisterDocument(ctx context.Context, actor utils.ActorContext, input RegisterDocumentInput) (*models.DocumentFile, error) {
	if err := requireClientAccess(actor, input.ClientID); err != nil {
		return nil, err
	}
	if err := s.validateRegisterInput(&input); err != nil {
		return nil, err
	}
	if input.FolderID != nil {
		if _, err := requireFolderInClient(s.folderRepo, *input.FolderID, input.ClientID); err != nil {
			return nil, err
		}
	}

	doc := &models.DocumentFile{
		ClientID:         input.ClientID,
		FolderID:         input.FolderID,
		OriginalName:     input.FileName,
		StoragePath:      input.StoragePath,
		StorageBucket:    input.StorageBucket,
		FileSize:         input.FileSize,
		MimeType:         input.MimeType,
		FileExtension:    strings.TrimPrefix(filepath.Ext(input.FileName), "."),
		Checksum:         input.Checksum,
		ChecksumVerified: input.ChecksumVerified,
		DocumentType:     input.DocumentType,
		TaxYear:          input.TaxYear,
		Category:         input.Category,
		Tags:             input.Tags,
		AccessLevel:      input.AccessLevel,
		VersionNumber:    1,
		IsCurrentVersion: true,
		UploadedBy:       actor.ActorID,
		UploadedAt:       time.Now(),
		ProcessingStatus: models.ProcessingStatusPending,
		VirusScanStatus:  models.ScanStatusPending,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		return nil, err
	}

	s.dispatchScan(doc)
	s.indexDocument(ctx, doc)
	logger.Info("Document registered",
		zap.String("documentID", doc.ID), zap.String("clientID", doc.ClientID), zap.String("fileName", doc.OriginalName))
	return doc, nil
}

func (s *documentService) CreateNewVersion(ctx context.Context, actor utils.ActorContext, documentID string, input NewVersionInput) (*models.DocumentFile, error) {
	current, err := requireDocumentAccess(s.documentRepo, documentID, actor)
	if err != nil {
		return nil, err
	}
	if !current.IsCurrentVersion {
		// 只能在当前版本上追加，历史版本是只读的
		return nil, xerr.ErrConflict
	}
	if err := checkFileName(input.FileName); err != nil {
		return nil, err
	}
	if input.FileSize <= 0 || input.FileSize > s.cfg.Upload.MaxFileSize {
		return nil, xerr.ErrFileTooLarge
	}
	if !utils.IsValidSHA256Hex(input.Checksum) {
		return nil, xerr.ErrChecksumMalformed
	}

	rootID := current.VersionRootID()
	newDoc := &models.DocumentFile{
		ClientID:         current.ClientID,
		FolderID:         current.FolderID,
		OriginalName:     input.FileName,
		StoragePath:      input.StoragePath,
		StorageBucket:    input.StorageBucket,
		FileSize:         input.FileSize,
		MimeType:         input.MimeType,
		FileExtension:    strings.TrimPrefix(filepath.Ext(input.FileName), "."),
		Checksum:         utils.NormalizeChecksum(input.Checksum),
		ChecksumVerified: input.ChecksumVerified,
		DocumentType:     current.DocumentType,
		TaxYear:          current.TaxYear,
		Category:         current.Category,
		Tags:             current.Tags,
		AccessLevel:      current.AccessLevel,
		VersionNumber:    current.VersionNumber + 1,
		IsCurrentVersion: true,
		ParentVersionID:  &rootID,
		UploadedBy:       actor.ActorID,
		UploadedAt:       time.Now(),
		ProcessingStatus: models.ProcessingStatusPending,
		VirusScanStatus:  models.ScanStatusPending,
	}

	// 旧版本降级和新版本插入在同一事务内，保证链上有且仅有一个当前版本
	err = s.transactionManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		affected, err := s.documentRepo.ClearCurrentFlag(tx, rootID)
		if err != nil {
			return err
		}
		if affected == 0 {
			// 并发的另一次版本创建已经抢先降级了当前版本
			return xerr.ErrConflict
		}
		return s.documentRepo.CreateTx(tx, newDoc)
	})
	if err != nil {
		return nil, err
	}

	s.dispatchScan(newDoc)
	s.indexDocument(ctx, newDoc)
	logger.Info("Document version created",
		zap.String("documentID", newDoc.ID), zap.String("rootID", rootID), zap.Int("version", newDoc.VersionNumber))
	return newDoc, nil
}

func (s *documentService) GetDocument(ctx context.Context, actor utils.ActorContext, documentID string) (*models.DocumentFile, error) {
	return requireDocumentAccess(s.documentRepo, documentID, actor)
}

func (s *documentService) ListDocuments(ctx context.Context, actor utils.ActorContext, clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error) {
	if err := requireClientAccess(actor, clientID); err != nil {
		return nil, 0, err
	}
	if folderID != nil {
		if _, err := requireFolderInClient(s.folderRepo, *folderID, clientID); err != nil {
			return nil, 0, err
		}
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.documentRepo.ListByFolder(clientID, folderID, page, pageSize)
}

func (s *documentService) SearchDocuments(ctx context.Context, actor utils.ActorContext, input SearchInput) ([]models.DocumentFile, int64, error) {
	if err := requireClientAccess(actor, input.ClientID); err != nil {
		return nil, 0, err
	}
	page, pageSize := normalizePage(input.Page, input.PageSize)

	params := repositories.DocumentSearchParams{
		ClientID:        input.ClientID,
		FolderID:        input.FolderID,
		DocumentType:    input.DocumentType,
		AccessLevel:     input.AccessLevel,
		VirusScanStatus: input.VirusScanStatus,
		Tag:             input.Tag,
		TaxYear:         input.TaxYear,
		UploadedBy:      input.UploadedBy,
		CreatedFrom:     input.CreatedFrom,
		CreatedTo:       input.CreatedTo,
		Query:           input.Query,
		CurrentOnly:     true,
		Page:            page,
		PageSize:        pageSize,
		SortBy:          input.SortBy,
		SortOrder:       input.SortOrder,
	}

	if input.Query != "" {
		// 先问 ES，命中ID交给 SQL 做权威过滤；ES 故障时降级为 SQL LIKE
		ids, err := s.indexer.Search(ctx, input.ClientID, input.Query, 1000)
		if err != nil {
			logger.Warn("Search index query failed, falling back to SQL",
				zap.String("clientID", input.ClientID), zap.Error(err))
		} else if len(ids) > 0 {
			params.IDs = ids
		} else if ids != nil {
			// ES 正常但无命中
			return []models.DocumentFile{}, 0, nil
		}
	}

	return s.documentRepo.Search(params)
}

func (s *documentService) ListVersions(ctx context.Context, actor utils.ActorContext, documentID string) ([]models.DocumentFile, error) {
	doc, err := requireDocumentAccess(s.documentRepo, documentID, actor)
	if err != nil {
		return nil, err
	}
	return s.documentRepo.ListVersions(doc.VersionRootID())
}

func (s *documentService) UpdateMetadata(ctx context.Context, actor utils.ActorContext, documentID string, input UpdateMetadataInput) (*models.DocumentFile, error) {
	doc, err := requireDocumentAccess(s.documentRepo, documentID, actor)
	if err != nil {
		return nil, err
	}

	if input.ClearFolder {
		doc.FolderID = nil
	} else if input.FolderID != nil {
		if _, err := requireFolderInClient(s.folderRepo, *input.FolderID, doc.ClientID); err != nil {
			return nil, err
		}
		doc.FolderID = input.FolderID
	}
	if input.DocumentType != nil {
		if !models.IsValidDocumentType(*input.DocumentType) {
			return nil, xerr.ErrValidation
		}
		doc.DocumentType = *input.DocumentType
	}
	if input.TaxYear != nil {
		doc.TaxYear = input.TaxYear
	}
	if input.Category != nil {
		doc.Category = input.Category
	}
	if input.Tags != nil {
		doc.Tags = input.Tags
	}
	if input.AccessLevel != nil {
		if !models.IsValidAccessLevel(*input.AccessLevel) {
			return nil, xerr.ErrValidation
		}
		doc.AccessLevel = *input.AccessLevel
	}

	if err := s.documentRepo.Update(doc); err != nil {
		return nil, err
	}
	s.indexDocument(ctx, doc)
	return doc, nil
}

func (s *documentService) DeleteDocument(ctx context.Context, actor utils.ActorContext, documentID string) error {
	doc, err := requireDocumentAccess(s.documentRepo, documentID, actor)
	if err != nil {
		return err
	}

	rootID := doc.VersionRootID()
	versions, err := s.documentRepo.ListVersions(rootID)
	if err != nil {
		return err
	}

	// 元数据、分享、评论在一个事务内落地；访问日志保留作审计证据
	err = s.transactionManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, v := range versions {
			if err := s.shareRepo.RevokeAllByDocument(tx, v.ID, actor.ActorID); err != nil {
				return err
			}
			if err := s.commentRepo.DeleteByDocument(tx, v.ID); err != nil {
				return err
			}
		}
		return s.documentRepo.DeleteVersions(tx, rootID)
	})
	if err != nil {
		return err
	}

	// 存储对象异步清理，清理失败不影响删除结果
	for _, v := range versions {
		task := models.BlobCleanupTask{
			DocumentID:  v.ID,
			StoragePath: v.StoragePath,
			Bucket:      v.StorageBucket,
		}
		if err := s.mqClient.PublishJSON(mq.QueueBlobCleanup, task); err != nil {
			logger.Error("Failed to enqueue blob cleanup",
				zap.String("documentID", v.ID), zap.String("storagePath", v.StoragePath), zap.Error(err))
		}
		if err := s.indexer.Remove(ctx, v.ID); err != nil {
			logger.Warn("Failed to remove document from search index",
				zap.String("documentID", v.ID), zap.Error(err))
		}
	}

	logger.Info("Document deleted",
		zap.String("rootID", rootID), zap.Int("versions", len(versions)), zap.String("deletedBy", actor.ActorID))
	return nil
}

func (s *documentService) GetDownloadURL(ctx context.Context, actor utils.ActorContext, documentID string) (string, error) {
	doc, err := requireDocumentAccess(s.documentRepo, documentID, actor)
	if err != nil {
		return "", err
	}
	if !doc.Downloadable() {
		return "", xerr.ErrContentBlocked
	}

	expiry := time.Duration(s.cfg.Storage.PresignedGetExpiry) * time.Minute
	url, err := s.objectStorage.PresignedGetURL(ctx, doc.StorageBucket, doc.StoragePath, doc.OriginalName, expiry)
	if err != nil {
		return "", xerr.ErrStorageUnavailable
	}

	if err := s.documentRepo.TouchAccess(doc.ID); err != nil {
		logger.Warn("Failed to touch document access", zap.String("documentID", doc.ID), zap.Error(err))
	}
	return url, nil
}

func (s *documentService) GetStats(ctx context.Context, actor utils.ActorContext, clientID string) (*repositories.DocumentStats, error) {
	if err := requireClientAccess(actor, clientID); err != nil {
		return nil, err
	}
	return s.documentRepo.StatsByClient(clientID)
}

func (s *documentService) TouchView(ctx context.Context, actor utils.ActorContext, documentID string) error {
	doc, err := requireDocumentAccess(s.documentRepo, documentID, actor)
	if err != nil {
		return err
	}
	return s.documentRepo.TouchAccess(doc.ID)
}

// dispatchScan 新内容入库后送检，派发失败只记日志，状态保持 pending 等补偿
func (s *documentService) dispatchScan(doc *models.DocumentFile) {
	task := models.ScanDispatchTask{
		DocumentID:  doc.ID,
		ClientID:    doc.ClientID,
		StoragePath: doc.StoragePath,
		Bucket:      doc.StorageBucket,
	}
	if err := s.mqClient.PublishJSON(mq.QueueScanDispatch, task); err != nil {
		logger.Error("Failed to dispatch virus scan",
			zap.String("documentID", doc.ID), zap.Error(err))
	}
}

// indexDocument ES 写入尽力而为，SQL 才是权威数据
func (s *documentService) indexDocument(ctx context.Context, doc *models.DocumentFile) {
	indexed := search.IndexedDocument{
		ID:           doc.ID,
		ClientID:     doc.ClientID,
		FolderID:     doc.FolderID,
		FileName:     doc.OriginalName,
		DocumentType: doc.DocumentType,
		Tags:         doc.Tags,
		CreatedAt:    doc.CreatedAt,
	}
	if doc.Category != nil {
		indexed.Description = doc.Category
	}
	if err := s.indexer.Index(ctx, indexed); err != nil {
		logger.Warn("Failed to index document", zap.String("documentID", doc.ID), zap.Error(err))
	}
}

func mimeAllowed(mimeType string, allowed []string) bool {
	for _, a := range allowed {
		if a == mimeType {
			return true
		}
		// 支持 image/* 这类通配
		if strings.HasSuffix(a, "/*") && strings.HasPrefix(mimeType, strings.TrimSuffix(a, "*")) {
			return true
		}
	}
	return false
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize
}
