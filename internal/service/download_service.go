package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/domain"
	"github.com/wrongjunior/eventbridge/internal/metrics"
	"github.com/wrongjunior/eventbridge/internal/repository"
)

// Sender queues a message for the frontend.
type Sender interface {
	Send(ctx context.Context, message string) error
}

// DownloadService records download infos and announces them to the frontend.
type DownloadService struct {
	repo    repository.DownloadRepository
	sender  Sender
	metrics *metrics.Registry
	logger  *zap.Logger
}

func NewDownloadService(repo repository.DownloadRepository, sender Sender, m *metrics.Registry, logger *zap.Logger) *DownloadService {
	return &DownloadService{
		repo:    repo,
		sender:  sender,
		metrics: m,
		logger:  logger.Named("downloads"),
	}
}

// Receive stores info and forwards its message. A failed forward is logged
// but does not fail the call; the info is already recorded.
func (s *DownloadService) Receive(ctx context.Context, info domain.DownloadFileInfo) error {
	s.logger.Info("received download file info",
		zap.String("url", info.URL),
		zap.String("hash", info.Hash),
		zap.Int64("remote_id", info.RemoteID),
	)

	if err := s.repo.SaveDownload(ctx, info); err != nil {
		s.metrics.RecordDownloadInfo("error")
		return err
	}
	s.metrics.RecordDownloadInfo("success")

	if err := s.sender.Send(ctx, info.Message()); err != nil {
		s.logger.Error("failed to send message to frontend", zap.Error(err))
	}
	return nil
}

// Recent returns the latest limit download infos.
func (s *DownloadService) Recent(ctx context.Context, limit int) ([]repository.DownloadRecord, error) {
	return s.repo.ListDownloads(ctx, limit)
}
