package worker

import (
	"errors"
	"log"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/mq"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/clearledger/go-docvault/internal/repositories"
	"github.com/clearledger/go-docvault/internal/services/audit"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// ScanResultWorker 消费扫描引擎回传的结果，驱动文档的扫描状态机
type ScanResultWorker struct {
	mqClient     *mq.RabbitMQClient
	documentRepo repositories.DocumentRepository
	recorder     audit.Recorder
}

func NewScanResultWorker(mqClient *mq.RabbitMQClient, documentRepo repositories.DocumentRepository, recorder audit.Recorder) *ScanResultWorker {
	return &ScanResultWorker{
		mqClient:     mqClient,
		documentRepo: documentRepo,
		recorder:     recorder,
	}
}

func (w *ScanResultWorker) Start() {
	if _, err := w.mqClient.DeclareQueue(mq.QueueScanResult); err != nil {
		log.Fatalf("Failed to declare queue: %s", err)
	}
	if err := w.mqClient.Consume(mq.QueueScanResult, w.HandleScanResult); err != nil {
		log.Fatalf("Failed to start consuming from queue: %s", err)
	}
	log.Println("Scan result worker started...")
}

func (w *ScanResultWorker) HandleScanResult(msg amqp.Delivery) {
	var result models.ScanResultMessage
	if err := mq.DecodeEnvelope(msg.Body, &result); err != nil {
		logger.Error("Failed to decode scan result", zap.Error(err))
		_ = msg.Nack(false, false) // 解析失败,直接抛弃
		return
	}

	doc, err := w.documentRepo.FindByID(result.DocumentID)
	if err != nil {
		if errors.Is(err, xerr.ErrDocumentNotFound) {
			// 文档在扫描期间被删掉了，结果作废
			logger.Info("Scan result for deleted document, discarding",
				zap.String("documentID", result.DocumentID))
			_ = msg.Ack(false)
			return
		}
		logger.Error("Failed to load document for scan result",
			zap.String("documentID", result.DocumentID), zap.Error(err))
		_ = msg.Nack(false, true) // 数据库错误，重新入队
		return
	}

	// 状态机校验：非法跃迁直接丢弃，终态不会被回退
	if !models.CanTransitionScanStatus(doc.VirusScanStatus, result.Status) {
		logger.Warn("Illegal scan status transition, discarding result",
			zap.String("documentID", doc.ID),
			zap.String("from", doc.VirusScanStatus), zap.String("to", result.Status))
		_ = msg.Ack(false)
		return
	}

	applied, err := w.documentRepo.UpdateScanStatus(doc.ID, doc.VirusScanStatus, result.Status, result.Result)
	if err != nil {
		logger.Error("Failed to update scan status",
			zap.String("documentID", doc.ID), zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	if !applied {
		// 并发更新抢先改了状态，这条结果已经过时
		logger.Info("Scan status changed concurrently, result discarded",
			zap.String("documentID", doc.ID), zap.String("to", result.Status))
		_ = msg.Ack(false)
		return
	}

	// 扫描进度联动处理状态机，严格按 pending → processing → 终态走
	switch result.Status {
	case models.ScanStatusScanning:
		w.advanceProcessing(doc.ID, models.ProcessingStatusPending, models.ProcessingStatusProcessing)
	case models.ScanStatusClean:
		w.advanceProcessing(doc.ID, models.ProcessingStatusPending, models.ProcessingStatusProcessing)
		w.advanceProcessing(doc.ID, models.ProcessingStatusProcessing, models.ProcessingStatusCompleted)
	case models.ScanStatusInfected, models.ScanStatusError:
		w.advanceProcessing(doc.ID, models.ProcessingStatusPending, models.ProcessingStatusProcessing)
		w.advanceProcessing(doc.ID, models.ProcessingStatusProcessing, models.ProcessingStatusFailed)
	}

	w.recorder.Record(audit.Entry{
		DocumentID: doc.ID,
		ClientID:   doc.ClientID,
		Action:     models.AccessActionScan,
	})
	logger.Info("Scan result applied",
		zap.String("documentID", doc.ID), zap.String("status", result.Status))
	_ = msg.Ack(false)
}

// advanceProcessing 尝试一次处理状态跃迁，from 不匹配时静默跳过
func (w *ScanResultWorker) advanceProcessing(documentID, from, to string) {
	if !models.CanTransitionProcessingStatus(from, to) {
		return
	}
	if _, err := w.documentRepo.UpdateProcessingStatus(documentID, from, to); err != nil {
		logger.Warn("Failed to advance processing status",
			zap.String("documentID", documentID), zap.String("to", to), zap.Error(err))
	}
}
