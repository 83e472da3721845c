package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 评论类别枚举
const (
	CommentTypeGeneral  = "general"
	CommentTypeReview   = "review"
	CommentTypeApproval = "approval"
	CommentTypeQuestion = "question"
	CommentTypeIssue    = "issue"
)

// IsValidCommentType 校验评论类别枚举
func IsValidCommentType(t string) bool {
	switch t {
	case CommentTypeGeneral, CommentTypeReview, CommentTypeApproval,
		CommentTypeQuestion, CommentTypeIssue:
		return true
	}
	return false
}

// DocumentComment 对应 document_comments 表
// 单层线程：ThreadLevel 0 为顶层评论，1 为直接回复，不允许更深的嵌套
type DocumentComment struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID string `gorm:"type:varchar(36);not null;index" json:"document_id"`
	ClientID   string `gorm:"type:varchar(36);not null;index:idx_comments_client" json:"client_id"`
	UserID     string `gorm:"type:varchar(36);not null" json:"user_id"`

	Comment     string `gorm:"type:text;not null" json:"comment"`
	CommentType string `gorm:"type:varchar(16);not null;default:'general'" json:"comment_type"`

	ParentCommentID *string `gorm:"type:varchar(36);default:null;index" json:"parent_comment_id"`
	ThreadLevel     int     `gorm:"not null;default:0" json:"thread_level"`

	IsResolved bool       `gorm:"not null;default:false" json:"is_resolved"`
	ResolvedBy *string    `gorm:"type:varchar(36);default:null" json:"resolved_by"`
	ResolvedAt *time.Time `gorm:"default:null" json:"resolved_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定 GORM 使用的表名
func (DocumentComment) TableName() string {
	return "document_comments"
}

// BeforeCreate 在插入前生成 UUID 主键
func (c *DocumentComment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
