package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/client"
	"github.com/wrongjunior/eventbridge/internal/domain"
	"github.com/wrongjunior/eventbridge/internal/metrics"
	"github.com/wrongjunior/eventbridge/internal/presenter"
	"github.com/wrongjunior/eventbridge/internal/server"
	"github.com/wrongjunior/eventbridge/internal/ui"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type mountFunc func(target string) error

func (f mountFunc) Mount(target string) error { return f(target) }

func startHub(t *testing.T) (*server.Server, string) {
	t.Helper()
	hub := server.NewServer(zap.NewNop(), metrics.NewRegistry())
	go hub.Run()
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		hub.Shutdown()
		ts.Close()
	})
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func subscriber(url string) *client.Subscriber {
	return client.NewSubscriber(client.Options{URL: url, RegistrationTimeout: time.Second}, zap.NewNop())
}

func TestStartPresentsMessages(t *testing.T) {
	hub, url := startHub(t)
	var out syncBuffer
	root := ui.NewRoot("eventbridge", &out)

	a := New(Options{}, subscriber(url), presenter.NewAlertPresenter(&out, nil), root, zap.NewNop())
	require.NoError(t, a.Start(context.Background()))
	defer a.Close()

	require.NoError(t, a.RegistrationErr())
	assert.True(t, root.Mounted())
	assert.Equal(t, "#app", root.Target())

	hub.Broadcast(domain.Event{Name: domain.EventName, Payload: "hello"})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Message from Axum: hello")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartEmptyPayload(t *testing.T) {
	hub, url := startHub(t)
	got := make(chan string, 1)

	a := New(Options{}, subscriber(url), presenter.Func(func(m string) { got <- presenter.Format(m) }), ui.NewRoot("eventbridge", &bytes.Buffer{}), zap.NewNop())
	require.NoError(t, a.Start(context.Background()))
	defer a.Close()

	hub.Broadcast(domain.Event{Name: domain.EventName, Payload: ""})
	select {
	case text := <-got:
		assert.Equal(t, "Message from Axum: ", text)
	case <-time.After(2 * time.Second):
		t.Fatal("presenter not invoked")
	}
}

func TestRegistrationCompletesBeforeMount(t *testing.T) {
	hub, url := startHub(t)

	var listenersAtMount int
	root := mountFunc(func(string) error {
		listenersAtMount = hub.Listeners(domain.EventName)
		return nil
	})

	a := New(Options{}, subscriber(url), presenter.Func(func(string) {}), root, zap.NewNop())
	require.NoError(t, a.Start(context.Background()))
	defer a.Close()

	assert.Equal(t, 1, listenersAtMount)
}

func TestStartMountsWhenBackendUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	root := ui.NewRoot("eventbridge", &bytes.Buffer{})
	presented := false
	a := New(Options{}, subscriber(url), presenter.Func(func(string) { presented = true }), root, zap.NewNop())

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, root.Mounted())
	assert.ErrorIs(t, a.RegistrationErr(), domain.ErrListenerRegistrationFailed)
	assert.ErrorIs(t, a.RegistrationErr(), domain.ErrChannelUnavailable)
	assert.Nil(t, a.Subscription())
	assert.False(t, presented)

	a.Close()
}

func TestNoEventsNeverPresents(t *testing.T) {
	_, url := startHub(t)
	root := ui.NewRoot("eventbridge", &bytes.Buffer{})

	var calls int
	var mu sync.Mutex
	a := New(Options{}, subscriber(url), presenter.Func(func(string) {
		mu.Lock()
		calls++
		mu.Unlock()
	}), root, zap.NewNop())

	require.NoError(t, a.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	a.Close()

	assert.True(t, root.Mounted())
	mu.Lock()
	assert.Zero(t, calls)
	mu.Unlock()
}

func TestStartMountFailure(t *testing.T) {
	_, url := startHub(t)

	a := New(Options{MountTarget: "app"}, subscriber(url), presenter.Func(func(string) {}), ui.NewRoot("eventbridge", &bytes.Buffer{}), zap.NewNop())
	err := a.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ui.ErrInvalidTarget)
	a.Close()
}

func TestCloseUnsubscribes(t *testing.T) {
	hub, url := startHub(t)

	a := New(Options{}, subscriber(url), presenter.Func(func(string) {}), ui.NewRoot("eventbridge", &bytes.Buffer{}), zap.NewNop())
	require.NoError(t, a.Start(context.Background()))
	sub := a.Subscription()
	require.NotNil(t, sub)

	a.Close()
	a.Close()

	<-sub.Done()
	require.Eventually(t, func() bool { return hub.Listeners(domain.EventName) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func closeWithin(t *testing.T, a *App, d time.Duration) {
	t.Helper()
	closed := make(chan struct{})
	go func() {
		a.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(d):
		t.Fatalf("Close still blocked after %s", d)
	}
}

func TestCloseDismissesPendingAlert(t *testing.T) {
	hub, url := startHub(t)
	var out syncBuffer
	in, w := io.Pipe()
	defer w.Close()

	a := New(Options{}, subscriber(url), presenter.NewAlertPresenter(&out, in), ui.NewRoot("eventbridge", &out), zap.NewNop())
	require.NoError(t, a.Start(context.Background()))
	sub := a.Subscription()
	require.NotNil(t, sub)

	hub.Broadcast(domain.Event{Name: domain.EventName, Payload: "hello"})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "press Enter to dismiss")
	}, 2*time.Second, 10*time.Millisecond)

	closeWithin(t, a, 2*time.Second)
	<-sub.Done()
}

func TestCloseBoundedByTimeout(t *testing.T) {
	hub, url := startHub(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	p := presenter.Func(func(string) {
		close(entered)
		<-release
	})
	a := New(Options{CloseTimeout: 50 * time.Millisecond}, subscriber(url), p, ui.NewRoot("eventbridge", &bytes.Buffer{}), zap.NewNop())
	require.NoError(t, a.Start(context.Background()))

	hub.Broadcast(domain.Event{Name: domain.EventName, Payload: "stuck"})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("presenter not invoked")
	}

	closeWithin(t, a, 2*time.Second)
	require.Eventually(t, func() bool { return hub.Listeners(domain.EventName) == 0 }, 2*time.Second, 10*time.Millisecond)
}
