package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ShareRepository defines the interface for share data access.
type ShareRepository interface {
	Create(share *models.DocumentShare) error
	FindByID(id string) (*models.DocumentShare, error)
	FindByToken(token string) (*models.DocumentShare, error)
	ListByDocument(documentID string) ([]models.DocumentShare, error)
	ListByClient(clientID string, page, pageSize int) ([]models.DocumentShare, int64, error)
	Update(share *models.DocumentShare) error
	// Revoke 幂等撤销，已撤销的分享保持首次撤销信息不变，返回是否本次生效
	Revoke(id, revokedBy string) (bool, error)
	// RevokeAllByDocument 文档删除时级联撤销全部分享，必须在事务内调用
	RevokeAllByDocument(tx *gorm.DB, documentID, revokedBy string) error
	// IncrementDownloadCount 原子占用一次下载配额，配额耗尽或已撤销时返回 false
	IncrementDownloadCount(id string) (bool, error)
	// TouchAccess 更新分享的最后访问时间
	TouchAccess(id string) error
}

type shareRepository struct {
	db *gorm.DB
}

// NewShareRepository creates a new shareRepository instance.
func NewShareRepository(db *gorm.DB) ShareRepository {
	return &shareRepository{db: db}
}

func (r *shareRepository) Create(share *models.DocumentShare) error {
	err := r.db.Create(share).Error
	if err != nil {
		logger.Error("Create: Failed to create share in DB",
			zap.String("documentID", share.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create share: %w", err)
	}
	return nil
}

func (r *shareRepository) FindByID(id string) (*models.DocumentShare, error) {
	var share models.DocumentShare
	err := r.db.Where("id = ?", id).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to find share: %w", err)
	}
	return &share, nil
}

func (r *shareRepository) FindByToken(token string) (*models.DocumentShare, error) {
	var share models.DocumentShare
	err := r.db.Where("share_token = ?", token).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to find share by token: %w", err)
	}
	return &share, nil
}

func (r *shareRepository) ListByDocument(documentID string) ([]models.DocumentShare, error) {
	var shares []models.DocumentShare
	err := r.db.Where("document_id = ?", documentID).Order("created_at DESC").Find(&shares).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shares by document: %w", err)
	}
	return shares, nil
}

func (r *shareRepository) ListByClient(clientID string, page, pageSize int) ([]models.DocumentShare, int64, error) {
	var shares []models.DocumentShare
	var total int64

	query := r.db.Model(&models.DocumentShare{}).Where("client_id = ?", clientID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count shares: %w", err)
	}
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&shares).Error
	if err != nil {
		logger.Error("Error listing shares from DB", zap.String("clientID", clientID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, total, nil
}

func (r *shareRepository) Update(share *models.DocumentShare) error {
	err := r.db.Save(share).Error
	if err != nil {
		logger.Error("Update: Failed to update share in DB", zap.String("shareID", share.ID), zap.Error(err))
		return fmt.Errorf("failed to update share: %w", err)
	}
	return nil
}

func (r *shareRepository) Revoke(id, revokedBy string) (bool, error) {
	res := r.db.Model(&models.DocumentShare{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{
			"revoked_at": time.Now(),
			"revoked_by": revokedBy,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to revoke share: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *shareRepository) RevokeAllByDocument(tx *gorm.DB, documentID, revokedBy string) error {
	err := tx.Model(&models.DocumentShare{}).
		Where("document_id = ? AND revoked_at IS NULL", documentID).
		Updates(map[string]any{
			"revoked_at": time.Now(),
			"revoked_by": revokedBy,
		}).Error
	if err != nil {
		logger.Error("RevokeAllByDocument: Failed to cascade revoke shares",
			zap.String("documentID", documentID), zap.Error(err))
		return fmt.Errorf("failed to revoke shares for document: %w", err)
	}
	return nil
}

// IncrementDownloadCount 用条件 UPDATE 做比较交换，
// 并发请求最多只有 max_downloads 次能拿到受影响行
func (r *shareRepository) IncrementDownloadCount(id string) (bool, error) {
	res := r.db.Model(&models.DocumentShare{}).
		Where("id = ? AND revoked_at IS NULL AND (max_downloads IS NULL OR download_count < max_downloads)", id).
		Update("download_count", gorm.Expr("download_count + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("failed to increment download count: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *shareRepository) TouchAccess(id string) error {
	err := r.db.Model(&models.DocumentShare{}).
		Where("id = ?", id).
		Update("last_accessed_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("failed to touch share access: %w", err)
	}
	return nil
}
