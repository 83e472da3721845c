package models

// ScanDispatchTask 上传完成后投递给外部扫描 Worker 的任务消息
type ScanDispatchTask struct {
	DocumentID  string `json:"document_id"`
	ClientID    string `json:"client_id"`
	StoragePath string `json:"storage_path"`
	Bucket      string `json:"bucket"`
}

// ScanResultMessage 外部扫描 Worker 回写的扫描结果消息
// Status 取 ScanStatus* 常量之一（scanning 表示扫描已受理）
type ScanResultMessage struct {
	DocumentID string  `json:"document_id"`
	Status     string  `json:"status"`
	Result     *string `json:"result,omitempty"`
}

// BlobCleanupTask 文档硬删除后对存储桶做垃圾回收的任务消息
type BlobCleanupTask struct {
	DocumentID  string `json:"document_id"`
	StoragePath string `json:"storage_path"`
	Bucket      string `json:"bucket"`
}
