package vault

import (
	"context"
	"errors"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultFolderNames 新客户开户时预建的标准目录
var DefaultFolderNames = []string{
	"Tax Documents",
	"Financial Statements",
	"Receipts",
	"Contracts",
	"Correspondence",
}

type FolderService interface {
	CreateFolder(ctx context.Context, actor utils.ActorContext, clientID, name string, parentFolderID *string) (*models.Folder, error)
	ListFolders(ctx context.Context, actor utils.ActorContext, clientID string, parentFolderID *string) ([]models.Folder, error)
	// GetFolderHierarchy 返回客户的整棵目录树，根层文件夹为切片元素
	GetFolderHierarchy(ctx context.Context, actor utils.ActorContext, clientID string) ([]*models.Folder, error)
	GetFolder(ctx context.Context, actor utils.ActorContext, folderID string) (*models.Folder, error)
	RenameFolder(ctx context.Context, actor utils.ActorContext, folderID, newName string) (*models.Folder, error)
	MoveFolder(ctx context.Context, actor utils.ActorContext, folderID string, newParentID *string) (*models.Folder, error)
	// DeleteFolder 只允许删除空文件夹
	DeleteFolder(ctx context.Context, actor utils.ActorContext, folderID string) error
	// EnsureDefaultFolders 幂等创建标准目录，已存在的跳过
	EnsureDefaultFolders(ctx context.Context, actor utils.ActorContext, clientID string) ([]models.Folder, error)
}

type folderService struct {
	folderRepo         repositories.FolderRepository
	documentRepo       repositories.DocumentRepository
	transactionManager TransactionManager
	cache              cache.Cache
}

var _ FolderService = (*folderService)(nil)

// NewFolderService 创建一个新的文件夹服务实例
func NewFolderService(
	folderRepo repositories.FolderRepository,
	documentRepo repositories.DocumentRepository,
	transactionManager TransactionManager,
	c cache.Cache,
) FolderService {
	return &folderService{
		folderRepo:         folderRepo,
		documentRepo:       documentRepo,
		transactionManager: transactionManager,
		cache:              c,
	}
}

// invalidateFolderCaches 目录结构变化后清掉树和相关列表缓存
func (s *folderService) invalidateFolderCaches(ctx context.Context, clientID string, parentIDs ...*string) {
	keys := []string{cache.GenerateFolderTreeKey(clientID)}
	for _, pid := range parentIDs {
		keys = append(keys, cache.GenerateFolderListKey(clientID, pid))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		logger.Warn("Failed to invalidate folder caches", zap.String("clientID", clientID), zap.Error(err))
	}
}

func (s *folderService) CreateFolder(ctx context.Context, actor utils.ActorContext, clientID, name string, parentFolderID *string) (*models.Folder, error) {
	if err := requireClientAccess(actor, clientID); err != nil {
		return nil, err
	}
	if err := checkFolderName(name); err != nil {
		return nil, err
	}

	parentPath := ""
	if parentFolderID != nil {
		parent, err := requireFolderInClient(s.folderRepo, *parentFolderID, clientID)
		if err != nil {
			if errors.Is(err, xerr.ErrFolderNotFound) {
				return nil, xerr.ErrInvalidParent
			}
			return nil, err
		}
		parentPath = parent.Path
	}
	if folderDepth(parentPath)+1 > maxFolderDepth {
		return nil, xerr.ErrInvalidParent
	}

	// 同级重名检查
	if _, err := s.folderRepo.FindByName(clientID, parentFolderID, name); err == nil {
		return nil, xerr.ErrDuplicateName
	} else if !errors.Is(err, xerr.ErrFolderNotFound) {
		return nil, err
	}

	folder := &models.Folder{
		ClientID:       clientID,
		ParentFolderID: parentFolderID,
		Name:           name,
		Path:           parentPath + "/" + name,
		CreatedBy:      actor.ActorID,
	}
	if err := s.folderRepo.Create(folder); err != nil {
		return nil, err
	}

	s.invalidateFolderCaches(ctx, clientID, parentFolderID)
	logger.Info("Folder created",
		zap.String("folderID", folder.ID), zap.String("clientID", clientID), zap.String("path", folder.Path))
	return folder, nil
}

func (s *folderService) ListFolders(ctx context.Context, actor utils.ActorContext, clientID string, parentFolderID *string) ([]models.Folder, error) {
	if err := requireClientAccess(actor, clientID); err != nil {
		return nil, err
	}
	if parentFolderID != nil {
		if _, err := requireFolderInClient(s.folderRepo, *parentFolderID, clientID); err != nil {
			return nil, err
		}
	}
	return s.folderRepo.ListByParent(clientID, parentFolderID)
}

func (s *folderService) GetFolderHierarchy(ctx context.Context, actor utils.ActorContext, clientID string) ([]*models.Folder, error) {
	if err := requireClientAccess(actor, clientID); err != nil {
		return nil, err
	}

	treeKey := cache.GenerateFolderTreeKey(clientID)
	var cachedRoots []*models.Folder
	if err := s.cache.Get(ctx, treeKey, &cachedRoots); err == nil {
		return cachedRoots, nil
	}

	folders, err := s.folderRepo.ListByClient(clientID)
	if err != nil {
		return nil, err
	}

	// 物化路径已按字典序排好，一次遍历即可组装成树
	byID := make(map[string]*models.Folder, len(folders))
	for i := range folders {
		byID[folders[i].ID] = &folders[i]
	}
	var roots []*models.Folder
	for i := range folders {
		f := &folders[i]
		if f.ParentFolderID == nil {
			roots = append(roots, f)
			continue
		}
		if parent, ok := byID[*f.ParentFolderID]; ok {
			parent.Children = append(parent.Children, f)
		} else {
			// 父节点缺失说明数据异常，降级挂到根层而不是丢弃
			logger.Warn("Folder has dangling parent reference",
				zap.String("folderID", f.ID), zap.String("parentID", *f.ParentFolderID))
			roots = append(roots, f)
		}
	}

	if err := s.cache.Set(ctx, treeKey, roots, cache.CacheTTL); err != nil {
		logger.Warn("Failed to cache folder tree", zap.String("clientID", clientID), zap.Error(err))
	}
	return roots, nil
}

func (s *folderService) GetFolder(ctx context.Context, actor utils.ActorContext, folderID string) (*models.Folder, error) {
	folder, err := s.folderRepo.FindByID(folderID)
	if err != nil {
		return nil, err
	}
	if err := requireClientAccess(actor, folder.ClientID); err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *folderService) RenameFolder(ctx context.Context, actor utils.ActorContext, folderID, newName string) (*models.Folder, error) {
	if err := checkFolderName(newName); err != nil {
		return nil, err
	}

	folder, err := s.GetFolder(ctx, actor, folderID)
	if err != nil {
		return nil, err
	}
	if folder.Name == newName {
		return folder, nil
	}

	// 目标名称在同级必须唯一
	if existing, err := s.folderRepo.FindByName(folder.ClientID, folder.ParentFolderID, newName); err == nil && existing.ID != folder.ID {
		return nil, xerr.ErrDuplicateName
	} else if err != nil && !errors.Is(err, xerr.ErrFolderNotFound) {
		return nil, err
	}

	oldPath := folder.Path
	parentPath := parentPathOf(oldPath, folder.Name)
	newPath := parentPath + "/" + newName

	err = s.transactionManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		// 锁住整棵子树，重命名与子树路径重算一起提交
		if _, err := s.folderRepo.FindSubtreeForUpdate(tx, folder.ClientID, oldPath); err != nil {
			return err
		}
		folder.Name = newName
		folder.Path = newPath
		if err := s.folderRepo.UpdateTx(tx, folder); err != nil {
			return err
		}
		return s.folderRepo.UpdateSubtreePaths(tx, folder.ClientID, oldPath, newPath)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateFolderCaches(ctx, folder.ClientID, folder.ParentFolderID)
	logger.Info("Folder renamed",
		zap.String("folderID", folder.ID), zap.String("oldPath", oldPath), zap.String("newPath", newPath))
	return folder, nil
}

func (s *folderService) MoveFolder(ctx context.Context, actor utils.ActorContext, folderID string, newParentID *string) (*models.Folder, error) {
	folder, err := s.GetFolder(ctx, actor, folderID)
	if err != nil {
		return nil, err
	}

	// 同目录移动是空操作
	if equalParent(folder.ParentFolderID, newParentID) {
		return folder, nil
	}

	newParentPath := ""
	if newParentID != nil {
		if *newParentID == folder.ID {
			return nil, xerr.ErrInvalidParent
		}
		newParent, err := requireFolderInClient(s.folderRepo, *newParentID, folder.ClientID)
		if err != nil {
			if errors.Is(err, xerr.ErrFolderNotFound) {
				return nil, xerr.ErrInvalidParent
			}
			return nil, err
		}
		// 不允许移动到自己的子孙目录下
		if newParent.Path == folder.Path || hasPathPrefix(newParent.Path, folder.Path) {
			return nil, xerr.ErrInvalidParent
		}
		newParentPath = newParent.Path
	}
	if folderDepth(newParentPath)+1 > maxFolderDepth {
		return nil, xerr.ErrInvalidParent
	}

	// 目标目录下的重名检查
	if _, err := s.folderRepo.FindByName(folder.ClientID, newParentID, folder.Name); err == nil {
		return nil, xerr.ErrDuplicateName
	} else if !errors.Is(err, xerr.ErrFolderNotFound) {
		return nil, err
	}

	oldPath := folder.Path
	oldParentID := folder.ParentFolderID
	newPath := newParentPath + "/" + folder.Name

	err = s.transactionManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.folderRepo.FindSubtreeForUpdate(tx, folder.ClientID, oldPath); err != nil {
			return err
		}
		folder.ParentFolderID = newParentID
		folder.Path = newPath
		if err := s.folderRepo.UpdateTx(tx, folder); err != nil {
			return err
		}
		return s.folderRepo.UpdateSubtreePaths(tx, folder.ClientID, oldPath, newPath)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateFolderCaches(ctx, folder.ClientID, oldParentID, newParentID)
	logger.Info("Folder moved",
		zap.String("folderID", folder.ID), zap.String("oldPath", oldPath), zap.String("newPath", newPath))
	return folder, nil
}

func (s *folderService) DeleteFolder(ctx context.Context, actor utils.ActorContext, folderID string) error {
	folder, err := s.GetFolder(ctx, actor, folderID)
	if err != nil {
		return err
	}

	childCount, err := s.folderRepo.CountChildren(folderID)
	if err != nil {
		return err
	}
	docCount, err := s.documentRepo.CountByFolder(folderID)
	if err != nil {
		return err
	}
	if childCount > 0 || docCount > 0 {
		return xerr.ErrFolderNotEmpty
	}

	if err := s.folderRepo.Delete(folderID); err != nil {
		return err
	}

	s.invalidateFolderCaches(ctx, folder.ClientID, folder.ParentFolderID)
	logger.Info("Folder deleted", zap.String("folderID", folderID), zap.String("path", folder.Path))
	return nil
}

func (s *folderService) EnsureDefaultFolders(ctx context.Context, actor utils.ActorContext, clientID string) ([]models.Folder, error) {
	if err := requireClientAccess(actor, clientID); err != nil {
		return nil, err
	}

	result := make([]models.Folder, 0, len(DefaultFolderNames))
	for _, name := range DefaultFolderNames {
		existing, err := s.folderRepo.FindByName(clientID, nil, name)
		if err == nil {
			result = append(result, *existing)
			continue
		}
		if !errors.Is(err, xerr.ErrFolderNotFound) {
			return nil, err
		}

		folder := &models.Folder{
			ClientID:  clientID,
			Name:      name,
			Path:      "/" + name,
			CreatedBy: actor.ActorID,
		}
		if err := s.folderRepo.Create(folder); err != nil {
			return nil, err
		}
		result = append(result, *folder)
	}

	s.invalidateFolderCaches(ctx, clientID, nil)
	return result, nil
}

// parentPathOf 从物化路径里剥掉最后一段得到父路径
func parentPathOf(path, name string) string {
	return path[:len(path)-len(name)-1]
}

// hasPathPrefix 判断 path 是否位于 ancestorPath 的子树内
func hasPathPrefix(path, ancestorPath string) bool {
	return len(path) > len(ancestorPath)+1 && path[:len(ancestorPath)+1] == ancestorPath+"/"
}

func equalParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
