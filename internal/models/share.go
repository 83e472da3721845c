package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 分享的业务类别，标记创建分享时的主要意图
const (
	ShareTypeView     = "view"
	ShareTypeDownload = "download"
	ShareTypeComment  = "comment"
	ShareTypeEdit     = "edit"
)

// 按分享权限位请求的动作
const (
	ShareActionView     = "view"
	ShareActionDownload = "download"
	ShareActionComment  = "comment"
	ShareActionEdit     = "edit"
)

// DocumentShare 对应 document_shares 表
// ShareToken 一经签发不可变更；撤销通过 RevokedAt 落章，永不回退
type DocumentShare struct {
	ID               string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID       string  `gorm:"type:varchar(36);not null;index" json:"document_id"`
	ClientID         string  `gorm:"type:varchar(36);not null;index:idx_shares_client" json:"client_id"`
	SharedWithUserID *string `gorm:"type:varchar(36);default:null" json:"shared_with_user_id"`
	SharedWithEmail  *string `gorm:"type:varchar(255);default:null" json:"shared_with_email"`
	ShareType        string  `gorm:"type:varchar(16);not null;default:'view'" json:"share_type"`

	// 访问控制
	ExpiresAt     *time.Time `gorm:"default:null" json:"expires_at"`
	PasswordHash  *string    `gorm:"type:varchar(255);default:null" json:"-"` // bcrypt 哈希，永不返回明文
	MaxDownloads  *int       `gorm:"default:null" json:"max_downloads"`
	DownloadCount int        `gorm:"not null;default:0" json:"download_count"`

	// 链接分享
	ShareToken   string `gorm:"type:varchar(64);not null;uniqueIndex" json:"share_token"`
	IsPublicLink bool   `gorm:"not null;default:false" json:"is_public_link"`

	// 权限位，按动作独立检查
	CanView     bool `gorm:"not null;default:true" json:"can_view"`
	CanDownload bool `gorm:"not null;default:true" json:"can_download"`
	CanComment  bool `gorm:"not null;default:false" json:"can_comment"`
	CanEdit     bool `gorm:"not null;default:false" json:"can_edit"`

	// 审计
	CreatedBy      string     `gorm:"type:varchar(36);not null" json:"created_by"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastAccessedAt *time.Time `gorm:"default:null" json:"last_accessed_at"`
	RevokedAt      *time.Time `gorm:"default:null;index" json:"revoked_at"`
	RevokedBy      *string    `gorm:"type:varchar(36);default:null" json:"revoked_by"`

	// 关联文档，方便预加载
	Document *DocumentFile `gorm:"foreignKey:DocumentID" json:"-"`
}

// TableName 指定 GORM 使用的表名
func (DocumentShare) TableName() string {
	return "document_shares"
}

// BeforeCreate 在插入前生成 UUID 主键
func (s *DocumentShare) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Revoked 判断分享是否已被撤销
func (s *DocumentShare) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired 判断分享在 now 时刻是否已过期
func (s *DocumentShare) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// DownloadsExhausted 判断下载配额是否已用尽
func (s *DocumentShare) DownloadsExhausted() bool {
	return s.MaxDownloads != nil && s.DownloadCount >= *s.MaxDownloads
}

// Usable 分享可用性谓词：未撤销、未过期、配额未用尽
func (s *DocumentShare) Usable(now time.Time) bool {
	return !s.Revoked() && !s.Expired(now) && !s.DownloadsExhausted()
}

// Permits 按动作检查权限位
func (s *DocumentShare) Permits(action string) bool {
	switch action {
	case ShareActionView:
		return s.CanView
	case ShareActionDownload:
		return s.CanDownload
	case ShareActionComment:
		return s.CanComment
	case ShareActionEdit:
		return s.CanEdit
	}
	return false
}
