package repositories

import (
	"errors"
	"fmt"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FolderRepository defines the interface for folder data access.
type FolderRepository interface {
	Create(folder *models.Folder) error
	FindByID(id string) (*models.Folder, error)
	// FindByName 同一父目录下按名称查找，用于重名检查
	FindByName(clientID string, parentFolderID *string, name string) (*models.Folder, error)
	ListByParent(clientID string, parentFolderID *string) ([]models.Folder, error)
	ListByClient(clientID string) ([]models.Folder, error)
	// FindSubtreeForUpdate 行锁取出以 pathPrefix 开头的整棵子树，必须在事务内调用
	FindSubtreeForUpdate(tx *gorm.DB, clientID, pathPrefix string) ([]models.Folder, error)
	Update(folder *models.Folder) error
	UpdateTx(tx *gorm.DB, folder *models.Folder) error
	// UpdateSubtreePaths 批量把 oldPrefix 前缀替换为 newPrefix，必须在事务内调用
	UpdateSubtreePaths(tx *gorm.DB, clientID, oldPrefix, newPrefix string) error
	CountChildren(id string) (int64, error)
	Delete(id string) error
}

type dbFolderRepository struct {
	db *gorm.DB
}

// NewFolderRepository creates a new dbFolderRepository instance.
func NewFolderRepository(db *gorm.DB) FolderRepository {
	return &dbFolderRepository{db: db}
}

func (r *dbFolderRepository) Create(folder *models.Folder) error {
	err := r.db.Create(folder).Error
	if err != nil {
		logger.Error("Create: Failed to create folder in DB",
			zap.String("clientID", folder.ClientID), zap.String("name", folder.Name), zap.Error(err))
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

func (r *dbFolderRepository) FindByID(id string) (*models.Folder, error) {
	var folder models.Folder
	err := r.db.Where("id = ?", id).First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to find folder: %w", err)
	}
	return &folder, nil
}

func (r *dbFolderRepository) FindByName(clientID string, parentFolderID *string, name string) (*models.Folder, error) {
	var folder models.Folder
	query := r.db.Where("client_id = ? AND name = ?", clientID, name)
	if parentFolderID == nil {
		query = query.Where("parent_folder_id IS NULL")
	} else {
		query = query.Where("parent_folder_id = ?", *parentFolderID)
	}
	err := query.First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to find folder by name: %w", err)
	}
	return &folder, nil
}

func (r *dbFolderRepository) ListByParent(clientID string, parentFolderID *string) ([]models.Folder, error) {
	var folders []models.Folder
	query := r.db.Where("client_id = ?", clientID)
	if parentFolderID == nil {
		query = query.Where("parent_folder_id IS NULL")
	} else {
		query = query.Where("parent_folder_id = ?", *parentFolderID)
	}
	err := query.Order("name ASC").Find(&folders).Error
	if err != nil {
		logger.Error("Error listing folders from DB",
			zap.String("clientID", clientID), zap.Any("parentFolderID", parentFolderID), zap.Error(err))
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

func (r *dbFolderRepository) ListByClient(clientID string) ([]models.Folder, error) {
	var folders []models.Folder
	err := r.db.Where("client_id = ?", clientID).Order("path ASC").Find(&folders).Error
	if err != nil {
		logger.Error("Error listing client folders from DB", zap.String("clientID", clientID), zap.Error(err))
		return nil, fmt.Errorf("failed to list client folders: %w", err)
	}
	return folders, nil
}

func (r *dbFolderRepository) FindSubtreeForUpdate(tx *gorm.DB, clientID, pathPrefix string) ([]models.Folder, error) {
	var folders []models.Folder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("client_id = ? AND (path = ? OR path LIKE ?)", clientID, pathPrefix, pathPrefix+"/%").
		Order("path ASC").
		Find(&folders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock folder subtree: %w", err)
	}
	return folders, nil
}

func (r *dbFolderRepository) Update(folder *models.Folder) error {
	return r.UpdateTx(r.db, folder)
}

func (r *dbFolderRepository) UpdateTx(tx *gorm.DB, folder *models.Folder) error {
	err := tx.Save(folder).Error
	if err != nil {
		logger.Error("Update: Failed to update folder in DB", zap.String("folderID", folder.ID), zap.Error(err))
		return fmt.Errorf("failed to update folder: %w", err)
	}
	return nil
}

func (r *dbFolderRepository) UpdateSubtreePaths(tx *gorm.DB, clientID, oldPrefix, newPrefix string) error {
	// CONCAT + SUBSTRING 在一条 UPDATE 内完成整棵子树的路径重算
	err := tx.Model(&models.Folder{}).
		Where("client_id = ? AND (path = ? OR path LIKE ?)", clientID, oldPrefix, oldPrefix+"/%").
		Update("path", gorm.Expr("CONCAT(?, SUBSTRING(path, ?))", newPrefix, len(oldPrefix)+1)).Error
	if err != nil {
		logger.Error("UpdateSubtreePaths: Failed to recompute subtree paths",
			zap.String("clientID", clientID), zap.String("oldPrefix", oldPrefix), zap.Error(err))
		return fmt.Errorf("failed to update subtree paths: %w", err)
	}
	return nil
}

func (r *dbFolderRepository) CountChildren(id string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Folder{}).Where("parent_folder_id = ?", id).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count child folders: %w", err)
	}
	return count, nil
}

func (r *dbFolderRepository) Delete(id string) error {
	err := r.db.Delete(&models.Folder{}, "id = ?", id).Error
	if err != nil {
		logger.Error("Delete: Failed to delete folder from DB", zap.String("folderID", id), zap.Error(err))
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}
