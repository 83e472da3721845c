package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 文档业务类型，对应税务平台的常见单据种类
const (
	DocTypeGeneral            = "general"
	DocTypeTaxDocument        = "tax_document"
	DocTypeFinancialStatement = "financial_statement"
	DocTypeContract           = "contract"
	DocTypeInvoice            = "invoice"
	DocTypeReceipt            = "receipt"
	DocTypeBankStatement      = "bank_statement"
	DocTypeW2                 = "w2"
	DocType1099               = "1099"
	DocTypeK1                 = "k1"
	DocTypeOther              = "other"
)

// 粗粒度可见性级别，与单条分享上的权限位相互独立
const (
	AccessLevelPrivate = "private"
	AccessLevelShared  = "shared"
	AccessLevelPublic  = "public"
)

// IsValidDocumentType 校验业务类型枚举
func IsValidDocumentType(t string) bool {
	switch t {
	case DocTypeGeneral, DocTypeTaxDocument, DocTypeFinancialStatement,
		DocTypeContract, DocTypeInvoice, DocTypeReceipt, DocTypeBankStatement,
		DocTypeW2, DocType1099, DocTypeK1, DocTypeOther:
		return true
	}
	return false
}

// IsValidAccessLevel 校验可见性级别枚举
func IsValidAccessLevel(l string) bool {
	switch l {
	case AccessLevelPrivate, AccessLevelShared, AccessLevelPublic:
		return true
	}
	return false
}

// TagList 以逗号分隔的形式把标签数组存进一个 varchar 列
// MySQL 没有原生数组类型，检索用的是 FIND_IN_SET / LIKE
type TagList []string

// Scan 实现 sql.Scanner
func (t *TagList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*t = nil
	case []byte:
		*t = splitTags(string(v))
	case string:
		*t = splitTags(v)
	}
	return nil
}

// Value 实现 driver.Valuer
func (t TagList) Value() (any, error) {
	if len(t) == 0 {
		return "", nil
	}
	return strings.Join(t, ","), nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// DocumentFile 对应 document_files 表，一行即版本链中的一个版本
// 版本链内有且仅有一行 is_current_version = true，其余行通过
// ParentVersionID 指向链根，按 VersionNumber 升序排列
type DocumentFile struct {
	ID               string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID         string  `gorm:"type:varchar(36);not null;index:idx_documents_client" json:"client_id"`
	FolderID         *string `gorm:"type:varchar(36);default:null;index" json:"folder_id"`
	OriginalName     string  `gorm:"type:varchar(255);not null" json:"original_name"`
	StoragePath      string  `gorm:"type:varchar(512);not null;uniqueIndex" json:"storage_path"`
	StorageBucket    string  `gorm:"type:varchar(64);not null" json:"storage_bucket"`
	FileSize         int64   `gorm:"type:bigint;not null" json:"file_size"`
	MimeType         string  `gorm:"type:varchar(128);not null" json:"mime_type"`
	FileExtension    string  `gorm:"type:varchar(16);not null" json:"file_extension"`
	Checksum         string  `gorm:"type:varchar(64);not null;index" json:"checksum"` // 内容的 SHA-256（hex）
	ChecksumVerified bool    `gorm:"not null;default:true" json:"checksum_verified"`  // 服务端是否复算过校验和

	// 文档元数据
	DocumentType string  `gorm:"type:varchar(32);not null;default:'general'" json:"document_type"`
	TaxYear      *int    `gorm:"default:null" json:"tax_year"`
	Category     *string `gorm:"type:varchar(128);default:null" json:"category"`
	Tags         TagList `gorm:"type:varchar(1024);not null;default:''" json:"tags"`

	// 安全与访问
	AccessLevel       string `gorm:"type:varchar(16);not null;default:'private'" json:"access_level"`
	PasswordProtected bool   `gorm:"not null;default:false" json:"password_protected"`

	// 版本控制
	VersionNumber    int     `gorm:"not null;default:1" json:"version_number"`
	IsCurrentVersion bool    `gorm:"not null;default:true;index:idx_documents_current" json:"is_current_version"`
	ParentVersionID  *string `gorm:"type:varchar(36);default:null;index" json:"parent_version_id"` // 指向版本链根

	// 审计字段
	UploadedBy     string     `gorm:"type:varchar(36);not null" json:"uploaded_by"`
	UploadedAt     time.Time  `gorm:"not null" json:"uploaded_at"`
	LastAccessedAt *time.Time `gorm:"default:null" json:"last_accessed_at"`
	AccessCount    int64      `gorm:"not null;default:0" json:"access_count"`

	// 状态跟踪
	ProcessingStatus string  `gorm:"type:varchar(16);not null;default:'pending'" json:"processing_status"`
	VirusScanStatus  string  `gorm:"type:varchar(16);not null;default:'pending'" json:"virus_scan_status"`
	VirusScanResult  *string `gorm:"type:varchar(512);default:null" json:"virus_scan_result,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Folder *Folder `gorm:"foreignKey:FolderID" json:"-"`
}

// TableName 指定 GORM 使用的表名
func (DocumentFile) TableName() string {
	return "document_files"
}

// BeforeCreate 在插入前生成 UUID 主键
func (d *DocumentFile) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// VersionRootID 返回版本链根的 ID：链根本身的 ParentVersionID 为空
func (d *DocumentFile) VersionRootID() string {
	if d.ParentVersionID != nil {
		return *d.ParentVersionID
	}
	return d.ID
}

// Downloadable 判断文档内容当前是否允许对外提供下载
// 感染文件一律拒绝，与分享权限无关
func (d *DocumentFile) Downloadable() bool {
	return d.VirusScanStatus != ScanStatusInfected
}
