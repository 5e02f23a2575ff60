package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/domain"
)

// Handler receives the payload of every event delivered to a subscription.
type Handler func(payload string)

// Options configures a Subscriber.
type Options struct {
	URL                 string
	RegistrationTimeout time.Duration
	ReconnectMaxBackoff time.Duration
	Dialer              *websocket.Dialer
}

// Subscriber registers listeners on the backend event channel.
type Subscriber struct {
	url        string
	dialer     *websocket.Dialer
	timeout    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

func NewSubscriber(options Options, logger *zap.Logger) *Subscriber {
	s := &Subscriber{
		url:        options.URL,
		dialer:     options.Dialer,
		timeout:    options.RegistrationTimeout,
		minBackoff: time.Second,
		maxBackoff: options.ReconnectMaxBackoff,
		logger:     logger.Named("subscriber"),
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.maxBackoff < s.minBackoff {
		s.maxBackoff = 30 * time.Second
	}
	return s
}

// Listen registers handler for event and returns once the backend has
// acknowledged the subscription. handler is called from a single goroutine,
// one event at a time, until the subscription is unsubscribed.
//
// Every error wraps domain.ErrListenerRegistrationFailed; an unreachable
// backend additionally wraps domain.ErrChannelUnavailable.
func (s *Subscriber) Listen(ctx context.Context, event string, handler Handler) (*Subscription, error) {
	if event == "" {
		return nil, fmt.Errorf("%w: event name is required", domain.ErrListenerRegistrationFailed)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler is required", domain.ErrListenerRegistrationFailed)
	}

	conn, err := s.register(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", event, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		id:         uuid.NewString(),
		event:      event,
		handler:    handler,
		subscriber: s,
		conn:       conn,
		ctx:        subCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.logger.Info("listening", zap.String("event", event), zap.String("subscription", sub.id))

	go sub.run(conn)
	return sub, nil
}

// register dials the channel and completes the listen handshake.
func (s *Subscriber) register(ctx context.Context, event string) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrListenerRegistrationFailed, domain.ErrChannelUnavailable, err)
	}

	if err := handshake(ctx, conn, event); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrListenerRegistrationFailed, err)
	}
	return conn, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, event string) error {
	deadline, _ := ctx.Deadline()
	// unblock reads as soon as ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(domain.Frame{Op: domain.OpListen, Event: event}); err != nil {
		return fmt.Errorf("send listen: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	conn.SetReadDeadline(deadline)
	for {
		var frame domain.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("await ack: %w", ctx.Err())
			}
			return fmt.Errorf("await ack: %w", err)
		}
		switch {
		case frame.Op == domain.OpListening && frame.Event == event:
			if !stop() {
				return fmt.Errorf("await ack: %w", context.Cause(ctx))
			}
			conn.SetReadDeadline(time.Time{})
			return nil
		case frame.Op == domain.OpError:
			return errors.New("backend rejected listen: " + frame.Error)
		}
	}
}

// Subscription is the handle for one registered listener.
type Subscription struct {
	id         string
	event      string
	handler    Handler
	subscriber *Subscriber

	mu   sync.Mutex
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) ID() string    { return s.id }
func (s *Subscription) Event() string { return s.event }

// Done is closed once the subscription stops delivering events.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe tells the backend to stop sending, closes the channel and waits
// for an in-flight handler to return. It must not be called from the handler.
func (s *Subscription) Unsubscribe() {
	_ = s.UnsubscribeContext(context.Background())
}

// UnsubscribeContext is Unsubscribe with the wait for the handler bounded by
// ctx. The channel is closed either way; a non-nil error means the handler
// was still running when ctx ended.
func (s *Subscription) UnsubscribeContext(ctx context.Context) error {
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		conn := s.conn
		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteJSON(domain.Frame{Op: domain.OpUnlisten, Event: s.event})
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}
		s.mu.Unlock()

		s.subscriber.logger.Info("unsubscribed", zap.String("event", s.event), zap.String("subscription", s.id))
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("unsubscribe %q: handler still running: %w", s.event, ctx.Err())
	}
}

func (s *Subscription) run(conn *websocket.Conn) {
	defer close(s.done)
	for {
		err := s.deliver(conn)
		conn.Close()
		if s.ctx.Err() != nil {
			return
		}
		s.subscriber.logger.Warn("event channel lost", zap.String("event", s.event), zap.Error(err))

		if conn = s.reconnect(); conn == nil {
			return
		}
	}
}

// deliver dispatches frames until the connection fails.
func (s *Subscription) deliver(conn *websocket.Conn) error {
	for {
		var frame domain.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		switch frame.Op {
		case domain.OpEmit:
			if frame.Event != s.event {
				continue
			}
			s.subscriber.logger.Info("received event", zap.String("event", frame.Event), zap.String("payload", frame.Payload))
			s.handler(frame.Payload)
		case domain.OpError:
			s.subscriber.logger.Warn("backend error", zap.String("event", frame.Event), zap.String("error", frame.Error))
		}
	}
}

// reconnect redials with exponential backoff. It returns nil once unsubscribed.
func (s *Subscription) reconnect() *websocket.Conn {
	backoff := s.subscriber.minBackoff
	for {
		conn, err := s.subscriber.register(s.ctx, s.event)
		if err == nil {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.ctx.Err() != nil {
				conn.Close()
				return nil
			}
			s.conn = conn
			s.subscriber.logger.Info("reconnected", zap.String("event", s.event))
			return conn
		}
		if s.ctx.Err() != nil {
			return nil
		}
		s.subscriber.logger.Warn("reconnect attempt failed", zap.Duration("retry_in", backoff), zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-s.ctx.Done():
			return nil
		}
		backoff = min(backoff*2, s.subscriber.maxBackoff)
	}
}
