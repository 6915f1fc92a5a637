package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when writing to a closed transport
var ErrClosed = errors.New("transport closed")

// Transport carries raw frames to the client. WriteFrame must be safe for
// concurrent use and must fail with ErrClosed once Close has been called.
type Transport interface {
	WriteFrame(data []byte) error
	Close() error
}

// State of a connection
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
)

// Conn is the per-connection protocol state. Streams are tracked by
// request id so concurrent sends never share bookkeeping.
type Conn struct {
	ID        string
	RemoteKey string

	transport Transport
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	streams map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewConn wraps a transport. The connection context is cancelled by Close.
func NewConn(ctx context.Context, id, remoteKey string, t Transport) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	return &Conn{
		ID:        id,
		RemoteKey: remoteKey,
		transport: t,
		ctx:       ctx,
		cancel:    cancel,
		streams:   make(map[string]context.CancelFunc),
	}
}

// Context is cancelled when the connection closes
func (c *Conn) Context() context.Context {
	return c.ctx
}

// State reports Streaming while at least one stream is in flight
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) > 0 {
		return StateStreaming
	}
	return StateIdle
}

// beginStream registers a stream under requestID. It fails when the id is
// already in flight or the connection is closing.
func (c *Conn) beginStream(requestID string) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	if _, busy := c.streams[requestID]; busy {
		return nil, false
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.streams[requestID] = cancel
	c.wg.Add(1)
	return ctx, true
}

func (c *Conn) endStream(requestID string) {
	c.mu.Lock()
	cancel, ok := c.streams[requestID]
	delete(c.streams, requestID)
	c.mu.Unlock()

	if ok {
		cancel()
		c.wg.Done()
	}
}

// stopStream cancels an in-flight stream and reports whether it existed
func (c *Conn) stopStream(requestID string) bool {
	c.mu.Lock()
	cancel, ok := c.streams[requestID]
	c.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Send encodes and writes one envelope
func (c *Conn) Send(typ string, payload any) error {
	frame, err := Encode(typ, payload)
	if err != nil {
		return err
	}
	return c.transport.WriteFrame(frame)
}

// reply sends an envelope whose delivery failure only matters to the log
func (c *Conn) reply(typ string, payload any) {
	if err := c.Send(typ, payload); err != nil && !errors.Is(err, ErrClosed) {
		log.Debug().Err(err).Str("conn_id", c.ID).Str("type", typ).Msg("Failed to write frame")
	}
}

// replyError reports err in the envelope type the client expects for the
// failed request.
func (c *Conn) replyError(typ, requestID string, err *domain.Error) {
	metrics.ErrorsTotal.WithLabelValues(string(err.Code)).Inc()
	c.reply(typ, errorPayload{Error: err.ClientMessage(), Code: err.Code, RequestID: requestID})
}

// Close cancels every stream, closes the transport and waits for the
// stream goroutines to finish.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}
