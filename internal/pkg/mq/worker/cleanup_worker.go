package worker

import (
	"context"
	"errors"
	"log"

	"github.com/clearledger/go-docvault/internal/models"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/mq"
	"github.com/clearledger/go-docvault/internal/pkg/storage"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// BlobCleanupWorker 文档删除后清理对象存储里的内容
type BlobCleanupWorker struct {
	mqClient      *mq.RabbitMQClient
	objectStorage storage.ObjectStorage
}

func NewBlobCleanupWorker(mqClient *mq.RabbitMQClient, objectStorage storage.ObjectStorage) *BlobCleanupWorker {
	return &BlobCleanupWorker{
		mqClient:      mqClient,
		objectStorage: objectStorage,
	}
}

func (w *BlobCleanupWorker) Start() {
	if _, err := w.mqClient.DeclareQueue(mq.QueueBlobCleanup); err != nil {
		log.Fatalf("Failed to declare queue: %s", err)
	}
	if err := w.mqClient.Consume(mq.QueueBlobCleanup, w.HandleCleanup); err != nil {
		log.Fatalf("Failed to start consuming from queue: %s", err)
	}
	log.Println("Blob cleanup worker started...")
}

func (w *BlobCleanupWorker) HandleCleanup(msg amqp.Delivery) {
	var task models.BlobCleanupTask
	if err := mq.DecodeEnvelope(msg.Body, &task); err != nil {
		logger.Error("Failed to decode cleanup task", zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	ctx := context.Background()
	if _, err := w.objectStorage.StatObject(ctx, task.Bucket, task.StoragePath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			// 对象已经不在了，清理是幂等的
			_ = msg.Ack(false)
			return
		}
		logger.Error("Failed to stat object for cleanup",
			zap.String("storagePath", task.StoragePath), zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}

	if err := w.objectStorage.RemoveObject(ctx, task.Bucket, task.StoragePath); err != nil {
		logger.Error("Failed to remove object, requeueing",
			zap.String("storagePath", task.StoragePath), zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}

	logger.Info("Blob cleaned up",
		zap.String("documentID", task.DocumentID), zap.String("storagePath", task.StoragePath))
	_ = msg.Ack(false)
}
