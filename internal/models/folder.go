package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Folder 对应 document_folders 表，按客户组织文档的目录树
// Path 是物化路径：从根到本文件夹的各级名称拼接，例如 "/Tax Documents/2023"
type Folder struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID       string    `gorm:"type:varchar(36);not null;index:idx_folders_client" json:"client_id"`
	ParentFolderID *string   `gorm:"type:varchar(36);default:null;index" json:"parent_folder_id"` // 根文件夹为 null
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Path           string    `gorm:"type:varchar(1024);not null" json:"path"`
	CreatedBy      string    `gorm:"type:varchar(36);not null" json:"created_by"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// 自关联，方便预加载父文件夹
	ParentFolder *Folder `gorm:"foreignKey:ParentFolderID" json:"-"`

	// 仅用于在内存中组装整棵目录树，不落库
	Children []*Folder `gorm:"-" json:"children,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (Folder) TableName() string {
	return "document_folders"
}

// BeforeCreate 在插入前生成 UUID 主键
func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
