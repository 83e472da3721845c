package repositories

import (
	"errors"
	"fmt"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"gorm.io/gorm"
)

// CommentRepository defines the interface for comment data access.
type CommentRepository interface {
	Create(comment *models.DocumentComment) error
	FindByID(id string) (*models.DocumentComment, error)
	ListByDocument(documentID string) ([]models.DocumentComment, error)
	Update(comment *models.DocumentComment) error
	Delete(id string) error
	// DeleteByDocument 文档删除时级联清理评论，必须在事务内调用
	DeleteByDocument(tx *gorm.DB, documentID string) error
	CountReplies(parentCommentID string) (int64, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new commentRepository instance.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(comment *models.DocumentComment) error {
	if err := r.db.Create(comment).Error; err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *commentRepository) FindByID(id string) (*models.DocumentComment, error) {
	var comment models.DocumentComment
	err := r.db.Where("id = ?", id).First(&comment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerr.ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	return &comment, nil
}

func (r *commentRepository) ListByDocument(documentID string) ([]models.DocumentComment, error) {
	var comments []models.DocumentComment
	// 顶级评论按时间排在前面，回复紧随其后由服务层组装
	err := r.db.Where("document_id = ?", documentID).
		Order("thread_level ASC, created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

func (r *commentRepository) Update(comment *models.DocumentComment) error {
	if err := r.db.Save(comment).Error; err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return nil
}

func (r *commentRepository) Delete(id string) error {
	// 顶级评论删除时其回复一并清理
	err := r.db.Where("id = ? OR parent_comment_id = ?", id, id).
		Delete(&models.DocumentComment{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

func (r *commentRepository) DeleteByDocument(tx *gorm.DB, documentID string) error {
	err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentComment{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete comments for document: %w", err)
	}
	return nil
}

func (r *commentRepository) CountReplies(parentCommentID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.DocumentComment{}).
		Where("parent_comment_id = ?", parentCommentID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count replies: %w", err)
	}
	return count, nil
}
