package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/domain"
	"github.com/wrongjunior/eventbridge/internal/metrics"
	"github.com/wrongjunior/eventbridge/internal/repository"
)

type stubSender struct {
	messages []string
	err      error
}

func (s *stubSender) Send(_ context.Context, message string) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, message)
	return nil
}

func newDownloadRepo(t *testing.T) *repository.SQLiteRepository {
	t.Helper()
	repo, err := repository.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Init())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestDownloadServiceReceive(t *testing.T) {
	repo := newDownloadRepo(t)
	sender := &stubSender{}
	s := NewDownloadService(repo, sender, metrics.NewRegistry(), zap.NewNop())

	info := domain.DownloadFileInfo{URL: "https://example.com/a.bin", Hash: "abc123", RemoteID: 42}
	require.NoError(t, s.Receive(context.Background(), info))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "Received file info for processing - URL: https://example.com/a.bin, Hash: abc123, Remote ID: 42", sender.messages[0])

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, info, recent[0].DownloadFileInfo)
}

func TestDownloadServiceSendFailureIsNotFatal(t *testing.T) {
	repo := newDownloadRepo(t)
	s := NewDownloadService(repo, &stubSender{err: errors.New("queue gone")}, metrics.NewRegistry(), zap.NewNop())

	err := s.Receive(context.Background(), domain.DownloadFileInfo{URL: "u", Hash: "h", RemoteID: 1})
	require.NoError(t, err)

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestDownloadServiceStoreFailure(t *testing.T) {
	repo := newDownloadRepo(t)
	require.NoError(t, repo.Close())
	sender := &stubSender{}
	s := NewDownloadService(repo, sender, metrics.NewRegistry(), zap.NewNop())

	err := s.Receive(context.Background(), domain.DownloadFileInfo{URL: "u"})
	require.Error(t, err)
	assert.Empty(t, sender.messages)
}
