package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/setup"
	"go.uber.org/zap"
)

// @title DocVault API
// @version 1.0
// @description 客户文档存储、版本管理与安全分享服务
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// 初始化日志系统
	if err := os.MkdirAll("logs", 0755); err != nil {
		logger.Fatal("Failed to create logs directory", zap.Error(err))
	}
	logger.InitLogger(cfg.Log.OutputPath, cfg.Log.ErrorPath, cfg.Log.Level)
	defer logger.Sync()

	srv, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to build server", zap.Error(err))
	}
	defer setup.CloseMySQLDB()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	srv.Run(stopChan)

	logger.Info("DocVault 服务已退出。")
}
