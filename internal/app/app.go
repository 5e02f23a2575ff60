// Package app wires the frontend: it registers the backend event listener,
// forwards payloads to the presenter and then mounts the UI root.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/client"
	"github.com/wrongjunior/eventbridge/internal/domain"
	"github.com/wrongjunior/eventbridge/internal/presenter"
)

// Listener registers a handler on a backend event channel.
type Listener interface {
	Listen(ctx context.Context, event string, handler client.Handler) (*client.Subscription, error)
}

// Mounter attaches the UI root to its host element.
type Mounter interface {
	Mount(target string) error
}

// Options configures the bootstrap sequence.
type Options struct {
	Event               string
	MountTarget         string
	RegistrationTimeout time.Duration
	// CloseTimeout bounds how long Close waits for an in-flight message.
	CloseTimeout time.Duration
}

// dismisser is implemented by presenters whose Present can be interrupted.
type dismisser interface {
	Dismiss()
}

// App owns the listener subscription for the lifetime of the process.
type App struct {
	options   Options
	listener  Listener
	presenter presenter.Presenter
	root      Mounter
	logger    *zap.Logger

	mu     sync.Mutex
	sub    *client.Subscription
	regErr error
}

func New(options Options, listener Listener, p presenter.Presenter, root Mounter, logger *zap.Logger) *App {
	if options.Event == "" {
		options.Event = domain.EventName
	}
	if options.MountTarget == "" {
		options.MountTarget = "#app"
	}
	if options.RegistrationTimeout <= 0 {
		options.RegistrationTimeout = 5 * time.Second
	}
	if options.CloseTimeout <= 0 {
		options.CloseTimeout = 5 * time.Second
	}
	return &App{
		options:   options,
		listener:  listener,
		presenter: p,
		root:      root,
		logger:    logger.Named("app"),
	}
}

// Start registers the listener, waits for it to be active and then mounts the
// UI. A failed registration is logged and does not prevent the mount.
func (a *App) Start(ctx context.Context) error {
	regCtx, cancel := context.WithTimeout(ctx, a.options.RegistrationTimeout)
	sub, err := a.listener.Listen(regCtx, a.options.Event, a.handleMessage)
	cancel()

	a.mu.Lock()
	a.sub, a.regErr = sub, err
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("event listener not registered, continuing without backend messages",
			zap.String("event", a.options.Event), zap.Error(err))
	}

	if err := a.root.Mount(a.options.MountTarget); err != nil {
		return fmt.Errorf("mount ui: %w", err)
	}
	a.logger.Info("ui mounted", zap.String("target", a.options.MountTarget))
	return nil
}

func (a *App) handleMessage(payload string) {
	a.presenter.Present(payload)
}

// RegistrationErr returns the error from the last Start, if registration failed.
func (a *App) RegistrationErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.regErr
}

func (a *App) Subscription() *client.Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sub
}

// Close unsubscribes the listener. It is safe to call without a subscription
// and more than once. A pending alert is dismissed and the wait for the
// handler is bounded by CloseTimeout.
func (a *App) Close() {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if d, ok := a.presenter.(dismisser); ok {
		d.Dismiss()
	}
	if sub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.options.CloseTimeout)
	defer cancel()
	if err := sub.UnsubscribeContext(ctx); err != nil {
		a.logger.Warn("listener did not stop in time", zap.Error(err))
	}
}
