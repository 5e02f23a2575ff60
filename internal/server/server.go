package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/domain"
	"github.com/wrongjunior/eventbridge/internal/metrics"
)

const (
	sendBufferSize = 256
	readLimit      = 4096
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Client is a single websocket connection and the events it listens on.
type Client struct {
	conn   *websocket.Conn
	send   chan domain.Frame
	events map[string]struct{}
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan domain.Frame, sendBufferSize),
		events: make(map[string]struct{}),
	}
}

// Broadcaster delivers an event to every listener of its name.
type Broadcaster interface {
	Broadcast(event domain.Event)
}

// Server is the websocket hub behind the event channel.
type Server struct {
	clients    map[*Client]struct{}
	mu         sync.RWMutex
	broadcast  chan domain.Event
	register   chan *Client
	unregister chan *Client
	logger     *zap.Logger
	metrics    *metrics.Registry
	ctx        context.Context
	cancel     context.CancelFunc
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the frontend runs from a webview or a local binary, any origin is accepted
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewServer creates a hub. Call Run before accepting connections.
func NewServer(logger *zap.Logger, m *metrics.Registry) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan domain.Event),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.Named("hub"),
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until Shutdown is called.
func (s *Server) Run() {
	s.logger.Info("hub started")
	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = struct{}{}
			s.metrics.SetListeners(len(s.clients))
			s.mu.Unlock()
			s.logger.Debug("client registered")
		case client := <-s.unregister:
			s.mu.Lock()
			s.drop(client)
			s.mu.Unlock()
		case event := <-s.broadcast:
			s.deliver(event)
		case <-s.ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				s.drop(client)
			}
			s.mu.Unlock()
			s.logger.Info("hub stopped")
			return
		}
	}
}

// drop removes a client and closes its queue. Caller holds s.mu.
func (s *Server) drop(client *Client) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	close(client.send)
	s.metrics.SetListeners(len(s.clients))
	s.logger.Debug("client removed")
}

func (s *Server) deliver(event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := domain.EmitFrame(event)
	for client := range s.clients {
		if _, ok := client.events[event.Name]; !ok {
			continue
		}
		select {
		case client.send <- frame:
			s.metrics.RecordDelivered(event.Name)
		default:
			s.drop(client)
			s.logger.Warn("evicted slow client", zap.String("event", event.Name))
		}
	}
	s.metrics.RecordEmitted(event.Name)
}

// Broadcast hands event to the hub. It is a no-op after Shutdown.
func (s *Server) Broadcast(event domain.Event) {
	select {
	case s.broadcast <- event:
	case <-s.ctx.Done():
	}
}

// reply queues a frame for one client if it is still connected.
func (s *Server) reply(client *Client, frame domain.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue(client, frame)
}

func (s *Server) enqueue(client *Client, frame domain.Frame) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	select {
	case client.send <- frame:
	default:
		s.drop(client)
	}
}

// listen adds event to the client's set and acknowledges in the same critical
// section, so no emit for event can reach the client ahead of the ack.
func (s *Server) listen(client *Client, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	client.events[event] = struct{}{}
	s.enqueue(client, domain.Frame{Op: domain.OpListening, Event: event})
	s.logger.Info("listener registered", zap.String("event", event))
}

func (s *Server) unlisten(client *Client, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(client.events, event)
	s.logger.Info("listener removed", zap.String("event", event))
}

// Listeners reports how many connected clients listen on event.
func (s *Server) Listeners(event string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for client := range s.clients {
		if _, ok := client.events[event]; ok {
			n++
		}
	}
	return n
}

// HandleWebSocket upgrades the request and serves the client until it disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(conn)

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	go s.writePump(client)
	s.readPump(client)
}

// readPump handles listen/unlisten frames and ends the connection on error.
func (s *Server) readPump(client *Client) {
	defer func() {
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
		client.conn.Close()
	}()
	client.conn.SetReadLimit(readLimit)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var frame domain.Frame
		if err := client.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		switch {
		case frame.Event == "" && (frame.Op == domain.OpListen || frame.Op == domain.OpUnlisten):
			s.reply(client, domain.Frame{Op: domain.OpError, Error: "event name is required"})
		case frame.Op == domain.OpListen:
			s.listen(client, frame.Event)
		case frame.Op == domain.OpUnlisten:
			s.unlisten(client, frame.Event)
		default:
			s.reply(client, domain.Frame{Op: domain.OpError, Event: frame.Event, Error: "unknown op " + frame.Op})
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteJSON(frame); err != nil {
				s.logger.Error("write frame failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// Shutdown stops the hub and closes every client.
func (s *Server) Shutdown() {
	s.cancel()
	s.logger.Info("hub shutting down")
}
