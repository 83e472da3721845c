package repositories

import (
	"time"

	"github.com/clearledger/go-docvault/internal/models"
	"gorm.io/gorm"
)

// DocumentSearchParams 文档检索条件，零值字段不参与过滤
type DocumentSearchParams struct {
	ClientID        string
	FolderID        *string
	DocumentType    *string
	AccessLevel     *string
	VirusScanStatus *string
	Tag             *string
	TaxYear         *int
	UploadedBy      *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Query           string   // 全文检索词，SQL 回退时走 LIKE
	IDs             []string // ES 命中的文档ID，非空时限定范围
	CurrentOnly     bool
	Page            int
	PageSize        int
	SortBy          string // created_at / file_name / file_size / uploaded_at
	SortOrder       string // asc / desc
}

// DocumentStats 客户维度的文档统计
type DocumentStats struct {
	TotalDocuments int64            `json:"total_documents"`
	TotalSize      int64            `json:"total_size"`
	ByDocumentType map[string]int64 `json:"by_document_type"`
	ByScanStatus   map[string]int64 `json:"by_scan_status"`
}

// DocumentRepository defines the interface for document data access.
type DocumentRepository interface {
	Create(doc *models.DocumentFile) error
	CreateTx(tx *gorm.DB, doc *models.DocumentFile) error
	FindByID(id string) (*models.DocumentFile, error)
	FindByStoragePath(path string) (*models.DocumentFile, error)
	ListByFolder(clientID string, folderID *string, page, pageSize int) ([]models.DocumentFile, int64, error)
	// ListVersions 返回版本链全部版本，按版本号升序
	ListVersions(rootID string) ([]models.DocumentFile, error)
	Search(params DocumentSearchParams) ([]models.DocumentFile, int64, error)
	Update(doc *models.DocumentFile) error
	// ClearCurrentFlag 把版本链上当前版本标记清零，返回受影响行数
	// 与新版本插入放在同一事务内保证链上有且仅有一个当前版本
	ClearCurrentFlag(tx *gorm.DB, rootID string) (int64, error)
	// TouchAccess 更新最后访问时间并自增访问计数
	TouchAccess(id string) error
	// UpdateScanStatus 按 FSM 约束做状态跃迁，from 不匹配时返回 false
	UpdateScanStatus(id, from, to string, result *string) (bool, error)
	// UpdateProcessingStatus 处理状态跃迁，同样带 from 前置条件
	UpdateProcessingStatus(id, from, to string) (bool, error)
	CountByFolder(folderID string) (int64, error)
	// DeleteVersions 删除整条版本链，必须在事务内调用
	DeleteVersions(tx *gorm.DB, rootID string) error
	StatsByClient(clientID string) (*DocumentStats, error)
}
