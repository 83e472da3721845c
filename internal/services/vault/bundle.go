package vault

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"
)

// BundleService 把一个文件夹的当前版本文档打成 zip 流
type BundleService interface {
	// DownloadFolderBundle 流式写出 zip，感染和待扫描的文档会被跳过
	DownloadFolderBundle(ctx context.Context, actor utils.ActorContext, folderID string, w io.Writer) (int, error)
}

type bundleService struct {
	folderRepo    repositories.FolderRepository
	documentRepo  repositories.DocumentRepository
	objectStorage storage.ObjectStorage
}

var _ BundleService = (*bundleService)(nil)

// NewBundleService 创建一个新的打包服务实例
func NewBundleService(
	folderRepo repositories.FolderRepository,
	documentRepo repositories.DocumentRepository,
	objectStorage storage.ObjectStorage,
) BundleService {
	return &bundleService{
		folderRepo:    folderRepo,
		documentRepo:  documentRepo,
		objectStorage: objectStorage,
	}
}

func (s *bundleService) DownloadFolderBundle(ctx context.Context, actor utils.ActorContext, folderID string, w io.Writer) (int, error) {
	folder, err := s.folderRepo.FindByID(folderID)
	if err != nil {
		return 0, err
	}
	if err := requireClientAccess(actor, folder.ClientID); err != nil {
		return 0, err
	}

	docs, _, err := s.documentRepo.ListByFolder(folder.ClientID, &folder.ID, 1, 1000)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	// 标准库的 deflate 换成 klauspost 的实现，大文件打包快不少
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	added := 0
	usedNames := make(map[string]int)
	for i := range docs {
		doc := &docs[i]
		if doc.VirusScanStatus != models.ScanStatusClean {
			logger.Info("Skipping document in bundle, scan status not clean",
				zap.String("documentID", doc.ID), zap.String("scanStatus", doc.VirusScanStatus))
			continue
		}
		if err := s.addEntry(ctx, zw, doc, usedNames); err != nil {
			zw.Close()
			return added, err
		}
		added++
	}

	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("failed to finalize zip bundle: %w", err)
	}
	logger.Info("Folder bundle written",
		zap.String("folderID", folderID), zap.Int("documents", added))
	return added, nil
}

func (s *bundleService) addEntry(ctx context.Context, zw *zip.Writer, doc *models.DocumentFile, usedNames map[string]int) error {
	obj, err := s.objectStorage.GetObject(ctx, doc.StorageBucket, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to fetch object for bundle: %w", err)
	}
	defer obj.Reader.Close()

	name := doc.OriginalName
	// 同名文件加序号后缀
	if n, ok := usedNames[name]; ok {
		usedNames[name] = n + 1
		name = fmt.Sprintf("(%d) %s", n, name)
	} else {
		usedNames[name] = 1
	}

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: doc.UploadedAt,
	}
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := io.Copy(entry, obj.Reader); err != nil {
		return fmt.Errorf("failed to write zip entry: %w", err)
	}
	return nil
}
