package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/domain"
	"github.com/wrongjunior/eventbridge/internal/metrics"
	"github.com/wrongjunior/eventbridge/internal/repository"
)

// ErrEmitterClosed is returned by Send after Shutdown.
var ErrEmitterClosed = errors.New("emitter is shut down")

// Broadcaster delivers an event to the frontend listeners.
type Broadcaster interface {
	Broadcast(event domain.Event)
}

// EventServiceOptions configures an EventService.
type EventServiceOptions struct {
	Event       string
	QueueSize   int
	Broadcaster Broadcaster
	Journal     repository.MessageJournal // optional
	Metrics     *metrics.Registry
}

// EventService queues messages and emits them, in order, as frontend events.
type EventService struct {
	event       string
	queue       chan string
	broadcaster Broadcaster
	journal     repository.MessageJournal
	metrics     *metrics.Registry
	logger      *zap.Logger
	done        chan struct{}
	once        sync.Once

	// mu orders Send admissions against Shutdown; inflight counts admitted
	// Sends so Run drains only after they settle.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewEventService creates an emitter. Run must be started for messages to flow.
func NewEventService(options EventServiceOptions, logger *zap.Logger) *EventService {
	if options.Event == "" {
		options.Event = domain.EventName
	}
	if options.QueueSize <= 0 {
		options.QueueSize = 32
	}
	return &EventService{
		event:       options.Event,
		queue:       make(chan string, options.QueueSize),
		broadcaster: options.Broadcaster,
		journal:     options.Journal,
		metrics:     options.Metrics,
		logger:      logger.Named("emitter"),
		done:        make(chan struct{}),
	}
}

// Send queues message, waiting for room while the queue is full. A nil
// return means the message will be emitted.
func (s *EventService) Send(ctx context.Context, message string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEmitterClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.queue <- message:
		s.metrics.SetQueueDepth(len(s.queue))
		return nil
	case <-s.done:
		return ErrEmitterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run emits queued messages until ctx is done or Shutdown is called.
// Messages still queued at Shutdown are emitted before Run returns.
func (s *EventService) Run(ctx context.Context) error {
	s.logger.Info("emitter started", zap.String("event", s.event))
	for {
		select {
		case message := <-s.queue:
			s.emit(ctx, message)
		case <-s.done:
			s.inflight.Wait()
			for {
				select {
				case message := <-s.queue:
					s.emit(ctx, message)
				default:
					s.logger.Info("emitter stopped")
					return nil
				}
			}
		case <-ctx.Done():
			s.logger.Info("emitter stopped", zap.Error(ctx.Err()))
			return nil
		}
	}
}

func (s *EventService) emit(ctx context.Context, message string) {
	s.metrics.SetQueueDepth(len(s.queue))
	s.logger.Info("sending message to frontend", zap.String("event", s.event), zap.String("message", message))

	event := domain.Event{Name: s.event, Payload: message}
	s.broadcaster.Broadcast(event)

	if s.journal == nil {
		return
	}
	if err := s.journal.SaveMessage(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("journal write failed", zap.Error(err))
	}
}

// Shutdown stops accepting messages. It is safe to call more than once.
func (s *EventService) Shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		s.mu.Unlock()
		s.logger.Info("emitter shutting down")
	})
}
