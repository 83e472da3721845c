package vault

import (
	"strings"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
)

// 文件夹与文件名的硬性限制
const (
	maxFolderNameLen = 255
	maxFileNameLen   = 255
	maxFolderDepth   = 20
)

// checkFolderName 文件夹名称规则：非空、长度受限、不含路径分隔符和控制字符
func checkFolderName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxFolderNameLen {
		return xerr.ErrFolderNameInvalid
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return xerr.ErrFolderNameInvalid
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f {
			return xerr.ErrFolderNameInvalid
		}
	}
	return nil
}

// checkFileName 上传文件名规则，宽于文件夹名但同样拒绝路径穿越
func checkFileName(name string) error {
	if name == "" || len(name) > maxFileNameLen {
		return xerr.ErrValidation
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return xerr.ErrValidation
	}
	return nil
}

// requireClientAccess 租户边界检查：客户联系人只能访问自己客户的数据
func requireClientAccess(actor utils.ActorContext, clientID string) error {
	if !actor.CanAccessClient(clientID) {
		return xerr.ErrPermissionDenied
	}
	return nil
}

// requireFolderInClient 校验文件夹归属，跨客户的 folder_id 视为非法父目录
func requireFolderInClient(folderRepo repositories.FolderRepository, folderID, clientID string) (*models.Folder, error) {
	folder, err := folderRepo.FindByID(folderID)
	if err != nil {
		return nil, err
	}
	if folder.ClientID != clientID {
		return nil, xerr.ErrInvalidParent
	}
	return folder, nil
}

// requireDocumentAccess 取出文档并做租户边界检查
func requireDocumentAccess(docRepo repositories.DocumentRepository, documentID string, actor utils.ActorContext) (*models.DocumentFile, error) {
	doc, err := docRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}
	if err := requireClientAccess(actor, doc.ClientID); err != nil {
		return nil, err
	}
	return doc, nil
}

// folderDepth 按物化路径计算深度，根目录下的文件夹深度为 1
func folderDepth(path string) int {
	return strings.Count(path, "/")
}
