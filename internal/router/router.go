package router

import (
	"net/http"

	_ "github.com/clearledger/go-docvault/docs"
	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/handlers"
	"github.com/clearledger/go-docvault/internal/middlewares"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterConfig 包含初始化路由所需的所有依赖
type RouterConfig struct {
	cfg         *config.Config
	cacheClient cache.Cache
	folder      *handlers.FolderHandler
	document    *handlers.DocumentHandler
	upload      *handlers.UploadHandler
	share       *handlers.ShareHandler
	comment     *handlers.CommentHandler
}

func NewRouterConfig(
	cfg *config.Config,
	cacheClient cache.Cache,
	folder *handlers.FolderHandler,
	document *handlers.DocumentHandler,
	upload *handlers.UploadHandler,
	share *handlers.ShareHandler,
	comment *handlers.CommentHandler,
) *RouterConfig {
	return &RouterConfig{
		cfg:         cfg,
		cacheClient: cacheClient,
		folder:      folder,
		document:    document,
		upload:      upload,
		share:       share,
		comment:     comment,
	}
}

func InitRouter(routerCfg *RouterConfig) *gin.Engine {
	if routerCfg.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 分享令牌是匿名入口，不走认证，但仍然限流
	shareTokenGroup := router.Group("/share")
	shareTokenGroup.Use(middlewares.RateLimitMiddleware(routerCfg.cfg, routerCfg.cacheClient))
	{
		shareTokenGroup.GET("/:token", routerCfg.share.ViewShared)
		shareTokenGroup.GET("/:token/download", routerCfg.share.DownloadShared)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middlewares.AuthMiddleware(routerCfg.cfg))
	v1.Use(middlewares.RateLimitMiddleware(routerCfg.cfg, routerCfg.cacheClient))
	{
		folderGroup := v1.Group("/folders")
		{
			folderGroup.POST("", routerCfg.folder.CreateFolder)
			folderGroup.GET("", routerCfg.folder.ListFolders)
			folderGroup.GET("/tree", routerCfg.folder.GetHierarchy)
			folderGroup.PUT("/:folder_id/rename", routerCfg.folder.RenameFolder)
			folderGroup.PUT("/:folder_id/move", routerCfg.folder.MoveFolder)
			folderGroup.DELETE("/:folder_id", routerCfg.folder.DeleteFolder)
			folderGroup.GET("/:folder_id/bundle", routerCfg.document.DownloadFolderBundle)
		}

		documentGroup := v1.Group("/documents")
		{
			documentGroup.GET("", routerCfg.document.ListDocuments)
			documentGroup.GET("/search", routerCfg.document.SearchDocuments)
			documentGroup.GET("/:document_id", routerCfg.document.GetDocument)
			documentGroup.PUT("/:document_id", routerCfg.document.UpdateMetadata)
			documentGroup.DELETE("/:document_id", routerCfg.document.DeleteDocument)
			documentGroup.GET("/:document_id/versions", routerCfg.document.ListVersions)
			documentGroup.GET("/:document_id/download", routerCfg.document.GetDownloadURL)
			documentGroup.GET("/:document_id/history", routerCfg.document.GetAccessHistory)
			documentGroup.GET("/:document_id/shares", routerCfg.share.ListShares)
			documentGroup.GET("/:document_id/comments", routerCfg.comment.ListThreads)
		}

		uploadGroup := v1.Group("/uploads")
		{
			uploadGroup.POST("", routerCfg.upload.RequestUpload)
			uploadGroup.POST("/finalize", routerCfg.upload.FinalizeUpload)
			uploadGroup.DELETE("/:session_id", routerCfg.upload.AbandonUpload)
		}

		shareGroup := v1.Group("/shares")
		{
			shareGroup.POST("", routerCfg.share.CreateShare)
			shareGroup.DELETE("/:share_id", routerCfg.share.RevokeShare)
		}

		commentGroup := v1.Group("/comments")
		{
			commentGroup.POST("", routerCfg.comment.CreateComment)
			commentGroup.PUT("/:comment_id", routerCfg.comment.UpdateComment)
			commentGroup.POST("/:comment_id/resolve", routerCfg.comment.ResolveComment)
			commentGroup.DELETE("/:comment_id", routerCfg.comment.DeleteComment)
		}

		clientGroup := v1.Group("/clients")
		{
			clientGroup.POST("/:client_id/folders/defaults", routerCfg.folder.EnsureDefaults)
			clientGroup.GET("/:client_id/shares", routerCfg.share.ListClientShares)
			clientGroup.GET("/:client_id/stats", routerCfg.document.GetStats)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, http.StatusNotFound, "Route not found")
	})

	return router
}
