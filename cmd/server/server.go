package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/handlers"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/mq"
	"github.com/clearledger/go-docvault/internal/pkg/mq/worker"
	"github.com/clearledger/go-docvault/internal/pkg/search"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/clearledger/go-docvault/internal/router"
	"github.com/clearledger/go-docvault/internal/services/audit"
	"github.com/clearledger/go-docvault/internal/services/comment"
	"github.com/clearledger/go-docvault/internal/services/share"
	"github.com/clearledger/go-docvault/internal/services/vault"
	"github.com/clearledger/go-docvault/internal/setup"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	router         *gin.Engine
	httpServer     *http.Server
	db             *gorm.DB
	redisClient    *redis.Client
	rabbitMQClient *mq.RabbitMQClient
	recorder       audit.Recorder
}

// NewServer 负责构建所有依赖
func NewServer(cfg *config.Config) (*Server, error) {
	// 初始化数据库连接
	setup.InitMySQL(&cfg.MySQL)
	mysqlDB := setup.DB

	// 初始化 Redis 连接
	setup.InitRedis(cfg)
	redisClient := setup.RedisClientGlobal

	// 初始化 Elasticsearch（未启用时检索退化为 SQL）
	setup.InitElasticsearchClient(&cfg.Elasticsearch)
	var indexer search.DocumentIndexer = search.NoopIndexer{}
	if cfg.Elasticsearch.Enabled {
		indexer = search.NewESIndexer(setup.EsClient)
	}

	// 初始化对象存储
	objectStorage := setup.InitStorage(cfg)

	// 初始化 RabbitMQ
	rabbitMQClient, err := mq.NewRabbitMQClient(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}

	// 初始化 Repositories
	cacheService := cache.NewRedisCache(redisClient)
	folderRepo := repositories.NewFolderRepository(mysqlDB)
	documentRepo := repositories.NewCachedDocumentRepository(repositories.NewDBDocumentRepository(mysqlDB), cacheService)
	shareRepo := repositories.NewShareRepository(mysqlDB)
	accessLogRepo := repositories.NewAccessLogRepository(mysqlDB)
	commentRepo := repositories.NewCommentRepository(mysqlDB)

	// 初始化 Services
	tm := vault.NewTransactionManager(mysqlDB)
	recorder := audit.NewRecorder(accessLogRepo, cacheService, 0)
	folderService := vault.NewFolderService(folderRepo, documentRepo, tm, cacheService)
	documentService := vault.NewDocumentService(documentRepo, folderRepo, shareRepo, commentRepo, tm, objectStorage, rabbitMQClient, indexer, cfg)
	uploadService := vault.NewUploadService(documentService, objectStorage, cacheService, cfg)
	bundleService := vault.NewBundleService(folderRepo, documentRepo, objectStorage)
	shareService := share.NewShareService(shareRepo, documentRepo, objectStorage, cacheService, recorder, cfg)
	commentService := comment.NewCommentService(commentRepo, documentRepo)

	// 初始化 Handlers
	folderHandler := handlers.NewFolderHandler(folderService)
	documentHandler := handlers.NewDocumentHandler(documentService, bundleService, recorder)
	uploadHandler := handlers.NewUploadHandler(uploadService, recorder)
	shareHandler := handlers.NewShareHandler(shareService)
	commentHandler := handlers.NewCommentHandler(commentService)

	// 启动所有后台 Worker
	worker.NewScanResultWorker(rabbitMQClient, documentRepo, recorder).Start()
	worker.NewBlobCleanupWorker(rabbitMQClient, objectStorage).Start()

	// 初始化 Gin 引擎和注册路由
	engine := router.InitRouter(router.NewRouterConfig(cfg, cacheService, folderHandler, documentHandler, uploadHandler, shareHandler, commentHandler))

	addr := ":" + cfg.Server.Port
	logger.Info("Server is running", zap.String("addr", addr))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	return &Server{
		router:         engine,
		httpServer:     httpServer,
		db:             mysqlDB,
		redisClient:    redisClient,
		rabbitMQClient: rabbitMQClient,
		recorder:       recorder,
	}, nil
}

// Run 启动服务器，并处理优雅关机
func (s *Server) Run(stopChan chan os.Signal) {
	// GORM v2 依赖连接池，通常不需要手动关闭。Redis、MQ 和审计通道需要。
	// defer 按后进先出执行：先停 MQ 消费者，最后关审计通道，保证扫描回调不再写日志
	defer s.redisClient.Close()
	defer s.recorder.Close()
	defer s.rabbitMQClient.Close()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	<-stopChan
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}
