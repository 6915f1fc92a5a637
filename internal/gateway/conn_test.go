package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (m *memTransport) WriteFrame(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.frames = append(m.frames, data)
	return nil
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestConn_StreamBookkeeping(t *testing.T) {
	c := NewConn(context.Background(), "conn", "127.0.0.1", &memTransport{})
	assert.Equal(t, StateIdle, c.State())

	ctx1, ok := c.beginStream("r1")
	require.True(t, ok)
	_, ok = c.beginStream("r2")
	require.True(t, ok)
	assert.Equal(t, StateStreaming, c.State())

	_, ok = c.beginStream("r1")
	assert.False(t, ok, "request id already in flight")

	assert.True(t, c.stopStream("r1"))
	assert.Error(t, ctx1.Err())
	assert.False(t, c.stopStream("unknown"))

	c.endStream("r1")
	c.endStream("r2")
	assert.Equal(t, StateIdle, c.State())

	_, ok = c.beginStream("r1")
	assert.True(t, ok, "ids may be reused once finished")
	c.endStream("r1")
}

func TestConn_CloseCancelsStreams(t *testing.T) {
	tr := &memTransport{}
	c := NewConn(context.Background(), "conn", "127.0.0.1", tr)

	ctx, ok := c.beginStream("r1")
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		c.endStream("r1")
		close(done)
	}()

	require.NoError(t, c.Close())
	<-done
	assert.Error(t, c.Context().Err())

	_, ok = c.beginStream("r2")
	assert.False(t, ok)
	assert.ErrorIs(t, c.Send(TypePong, nil), ErrClosed)
	require.NoError(t, c.Close())
}
