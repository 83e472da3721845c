package repositories

import (
	"fmt"

	"github.com/clearledger/go-docvault/internal/models"
	"gorm.io/gorm"
)

// AccessLogRepository 访问日志只追加，没有更新和删除
type AccessLogRepository interface {
	Create(entry *models.DocumentAccessLog) error
	ListByDocument(documentID string, limit int) ([]models.DocumentAccessLog, error)
	ListByUser(userID string, limit int) ([]models.DocumentAccessLog, error)
	CountByDocument(documentID string) (int64, error)
}

type accessLogRepository struct {
	db *gorm.DB
}

// NewAccessLogRepository creates a new accessLogRepository instance.
func NewAccessLogRepository(db *gorm.DB) AccessLogRepository {
	return &accessLogRepository{db: db}
}

func (r *accessLogRepository) Create(entry *models.DocumentAccessLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create access log: %w", err)
	}
	return nil
}

func (r *accessLogRepository) ListByDocument(documentID string, limit int) ([]models.DocumentAccessLog, error) {
	var entries []models.DocumentAccessLog
	err := r.db.Where("document_id = ?", documentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	return entries, nil
}

func (r *accessLogRepository) ListByUser(userID string, limit int) ([]models.DocumentAccessLog, error) {
	var entries []models.DocumentAccessLog
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs by actor: %w", err)
	}
	return entries, nil
}

func (r *accessLogRepository) CountByDocument(documentID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.DocumentAccessLog{}).Where("document_id = ?", documentID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count access logs: %w", err)
	}
	return count, nil
}
