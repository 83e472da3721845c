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

// dbDocumentRepository is the implementation of DocumentRepository backed by MySQL.
type dbDocumentRepository struct {
	db *gorm.DB
}

// NewDBDocumentRepository creates a new dbDocumentRepository instance.
func NewDBDocumentRepository(db *gorm.DB) DocumentRepository {
	return &dbDocumentRepository{db: db}
}

func (r *dbDocumentRepository) Create(doc *models.DocumentFile) error {
	return r.CreateTx(r.db, doc)
}

func (r *dbDocumentRepository) CreateTx(tx *gorm.DB, doc *models.DocumentFile) error {
	err := tx.Create(doc).Error
	if err != nil {
		logger.Error("Create: Failed to create document in DB",
			zap.String("clientID", doc.ClientID), zap.String("fileName", doc.OriginalName), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *dbDocumentRepository) FindByID(id string) (*models.DocumentFile, error) {
	var doc models.DocumentFile
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return &doc, nil
}

func (r *dbDocumentRepository) FindByStoragePath(path string) (*models.DocumentFile, error) {
	var doc models.DocumentFile
	err := r.db.Where("storage_path = ?", path).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find document by storage path: %w", err)
	}
	return &doc, nil
}

func (r *dbDocumentRepository) ListByFolder(clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error) {
	var docs []models.DocumentFile
	var total int64

	query := r.db.Model(&models.DocumentFile{}).
		Where("client_id = ? AND is_current_version = ?", clientID, true)
	if folderID == nil {
		query = query.Where("folder_id IS NULL")
	} else {
		query = query.Where("folder_id = ?", *folderID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	err := query.Order("uploaded_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&docs).Error
	if err != nil {
		logger.Error("Error listing documents from DB",
			zap.String("clientID", clientID), zap.Any("folderID", folderID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

func (r *dbDocumentRepository) ListVersions(rootID string) ([]models.DocumentFile, error) {
	var docs []models.DocumentFile
	err := r.db.Where("id = ? OR parent_version_id = ?", rootID, rootID).
		Order("version_number ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list document versions: %w", err)
	}
	return docs, nil
}

func (r *dbDocumentRepository) Search(params DocumentSearchParams) ([]models.DocumentFile, int64, error) {
	query := r.db.Model(&models.DocumentFile{}).Where("client_id = ?", params.ClientID)

	if params.CurrentOnly {
		query = query.Where("is_current_version = ?", true)
	}
	if params.FolderID != nil {
		query = query.Where("folder_id = ?", *params.FolderID)
	}
	if params.DocumentType != nil {
		query = query.Where("document_type = ?", *params.DocumentType)
	}
	if params.AccessLevel != nil {
		query = query.Where("access_level = ?", *params.AccessLevel)
	}
	if params.VirusScanStatus != nil {
		query = query.Where("virus_scan_status = ?", *params.VirusScanStatus)
	}
	if params.Tag != nil {
		query = query.Where("FIND_IN_SET(?, tags) > 0", *params.Tag)
	}
	if params.TaxYear != nil {
		query = query.Where("tax_year = ?", *params.TaxYear)
	}
	if params.UploadedBy != nil {
		query = query.Where("uploaded_by = ?", *params.UploadedBy)
	}
	if params.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *params.CreatedFrom)
	}
	if params.CreatedTo != nil {
		query = query.Where("created_at <= ?", *params.CreatedTo)
	}
	if len(params.IDs) > 0 {
		// ES 命中的ID集合限定范围
		query = query.Where("id IN ?", params.IDs)
	} else if params.Query != "" {
		// 未启用 ES 时的 SQL 回退
		like := "%" + params.Query + "%"
		query = query.Where("original_name LIKE ? OR category LIKE ? OR tags LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	sortBy := params.SortBy
	switch sortBy {
	case "file_name":
		sortBy = "original_name"
	case "file_size", "uploaded_at", "created_at":
	default:
		sortBy = "created_at"
	}
	order := "DESC"
	if params.SortOrder == "asc" {
		order = "ASC"
	}

	var docs []models.DocumentFile
	err := query.Order(fmt.Sprintf("%s %s", sortBy, order)).
		Offset((params.Page - 1) * params.PageSize).Limit(params.PageSize).
		Find(&docs).Error
	if err != nil {
		logger.Error("Error searching documents from DB", zap.String("clientID", params.ClientID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to search documents: %w", err)
	}
	return docs, total, nil
}

func (r *dbDocumentRepository) Update(doc *models.DocumentFile) error {
	err := r.db.Save(doc).Error
	if err != nil {
		logger.Error("Update: Failed to update document in DB", zap.String("documentID", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (r *dbDocumentRepository) ClearCurrentFlag(tx *gorm.DB, rootID string) (int64, error) {
	result := tx.Model(&models.DocumentFile{}).
		Where("(id = ? OR parent_version_id = ?) AND is_current_version = ?", rootID, rootID, true).
		Update("is_current_version", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear current version flag: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *dbDocumentRepository) TouchAccess(id string) error {
	err := r.db.Model(&models.DocumentFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_accessed_at": time.Now(),
			"access_count":     gorm.Expr("access_count + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to touch document access: %w", err)
	}
	return nil
}

func (r *dbDocumentRepository) UpdateScanStatus(id, from, to string, result *string) (bool, error) {
	updates := map[string]any{"virus_scan_status": to}
	if result != nil {
		updates["virus_scan_result"] = *result
	}
	res := r.db.Model(&models.DocumentFile{}).
		Where("id = ? AND virus_scan_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update scan status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *dbDocumentRepository) UpdateProcessingStatus(id, from, to string) (bool, error) {
	res := r.db.Model(&models.DocumentFile{}).
		Where("id = ? AND processing_status = ?", id, from).
		Update("processing_status", to)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update processing status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *dbDocumentRepository) CountByFolder(folderID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.DocumentFile{}).Where("folder_id = ?", folderID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in folder: %w", err)
	}
	return count, nil
}

func (r *dbDocumentRepository) DeleteVersions(tx *gorm.DB, rootID string) error {
	err := tx.Where("id = ? OR parent_version_id = ?", rootID, rootID).
		Delete(&models.DocumentFile{}).Error
	if err != nil {
		logger.Error("DeleteVersions: Failed to delete document version chain",
			zap.String("rootID", rootID), zap.Error(err))
		return fmt.Errorf("failed to delete document versions: %w", err)
	}
	return nil
}

func (r *dbDocumentRepository) StatsByClient(clientID string) (*DocumentStats, error) {
	stats := &DocumentStats{
		ByDocumentType: make(map[string]int64),
		ByScanStatus:   make(map[string]int64),
	}

	base := r.db.Model(&models.DocumentFile{}).
		Where("client_id = ? AND is_current_version = ?", clientID, true)

	row := base.Session(&gorm.Session{}).
		Select("COUNT(*), COALESCE(SUM(file_size), 0)").Row()
	if err := row.Scan(&stats.TotalDocuments, &stats.TotalSize); err != nil {
		return nil, fmt.Errorf("failed to aggregate document stats: %w", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var byType []bucket
	if err := base.Session(&gorm.Session{}).
		Select("document_type AS `key`, COUNT(*) AS `count`").
		Group("document_type").Scan(&byType).Error; err != nil {
		return nil, fmt.Errorf("failed to group documents by type: %w", err)
	}
	for _, b := range byType {
		stats.ByDocumentType[b.Key] = b.Count
	}

	var byScan []bucket
	if err := base.Session(&gorm.Session{}).
		Select("virus_scan_status AS `key`, COUNT(*) AS `count`").
		Group("virus_scan_status").Scan(&byScan).Error; err != nil {
		return nil, fmt.Errorf("failed to group documents by scan status: %w", err)
	}
	for _, b := range byScan {
		stats.ByScanStatus[b.Key] = b.Count
	}

	return stats, nil
}
