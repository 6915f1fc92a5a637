package gateway

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Rrens/chat-gateway/internal/config"
	"github.com/Rrens/chat-gateway/internal/metrics"
	"github.com/Rrens/chat-gateway/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsTransport serializes writes to a websocket. gorilla/websocket allows a
// single concurrent writer.
type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration

	mu     sync.Mutex
	closed bool
}

func (t *wsTransport) write(messageType int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.writeWait > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	}
	return t.conn.WriteMessage(messageType, data)
}

func (t *wsTransport) WriteFrame(data []byte) error {
	return t.write(websocket.TextMessage, data)
}

func (t *wsTransport) ping() error {
	return t.write(websocket.PingMessage, nil)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}

// Server upgrades HTTP requests and runs one read loop per connection
type Server struct {
	dispatcher *Dispatcher
	binder     *session.Binder
	cfg        config.WSConfig
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*Conn
	wg    sync.WaitGroup
}

// NewServer creates a new websocket server
func NewServer(dispatcher *Dispatcher, binder *session.Binder, cfg config.WSConfig) *Server {
	return &Server{
		dispatcher: dispatcher,
		binder:     binder,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// local desktop clients connect from arbitrary origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}
}

// ServeHTTP handles the websocket endpoint
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	t := &wsTransport{conn: ws, writeWait: s.cfg.WriteWait}
	c := NewConn(context.WithoutCancel(r.Context()), uuid.NewString(), remoteKey(r), t)

	s.track(c)
	defer s.untrack(c)

	logger := log.With().Str("conn_id", c.ID).Str("remote", c.RemoteKey).Logger()
	logger.Info().Msg("WebSocket connection opened")

	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}
	if s.cfg.PongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		})
	}
	if s.cfg.PingInterval > 0 {
		go s.keepalive(c, t)
	}

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			break
		}
		s.dispatcher.Dispatch(c.Context(), c, frame)
	}

	logger.Info().Msg("WebSocket connection closed")
}

func (s *Server) keepalive(c *Conn, t *wsTransport) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Context().Done():
			return
		case <-ticker.C:
			if err := t.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c.ID] = c
	s.mu.Unlock()
	metrics.ConnectionsOpen.Inc()
}

// untrack closes the connection and drops its binding
func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID)
	s.mu.Unlock()

	_ = c.Close()
	s.binder.Release(c.ID)
	metrics.ConnectionsOpen.Dec()
}

// Len returns the number of open connections
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every connection and waits for the read loops to exit
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remoteKey identifies the client for rate limiting
func remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
