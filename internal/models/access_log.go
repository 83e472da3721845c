package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 审计动作枚举
const (
	AccessActionView     = "view"
	AccessActionPreview  = "preview"
	AccessActionDownload = "download"
	AccessActionUpload   = "upload"
	AccessActionShare    = "share"
	AccessActionEdit     = "edit"
	AccessActionDelete   = "delete"
	AccessActionScan     = "scan"
)

// DocumentAccessLog 对应 document_access_logs 表
// 仅追加：正常运行下永不更新、永不删除
type DocumentAccessLog struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID string    `gorm:"type:varchar(36);not null;index" json:"document_id"`
	ClientID   string    `gorm:"type:varchar(36);not null;index:idx_access_logs_client" json:"client_id"`
	UserID     *string   `gorm:"type:varchar(36);default:null" json:"user_id"`
	ShareID    *string   `gorm:"type:varchar(36);default:null" json:"share_id"`
	Action     string    `gorm:"type:varchar(16);not null" json:"action"`
	IPAddress  *string   `gorm:"type:varchar(45);default:null" json:"ip_address"`
	UserAgent  *string   `gorm:"type:varchar(512);default:null" json:"user_agent"`
	SessionID  *string   `gorm:"type:varchar(64);default:null" json:"session_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定 GORM 使用的表名
func (DocumentAccessLog) TableName() string {
	return "document_access_logs"
}

// BeforeCreate 在插入前生成 UUID 主键
func (l *DocumentAccessLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
