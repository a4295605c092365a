package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	opens  int
	texts  chan string
	binary chan []byte
	closes chan int
	fails  chan error
}

func newRecorder() *recorder {
	return &recorder{
		texts:  make(chan string, 16),
		binary: make(chan []byte, 16),
		closes: make(chan int, 4),
		fails:  make(chan error, 4),
	}
}

func (r *recorder) OnOpen() {
	r.mu.Lock()
	r.opens++
	r.mu.Unlock()
}
func (r *recorder) OnText(data []byte)         { r.texts <- string(data) }
func (r *recorder) OnBinary(data []byte)       { r.binary <- data }
func (r *recorder) OnClose(code int, _ string) { r.closes <- code }
func (r *recorder) OnFailure(err error)        { r.fails <- err }

func (r *recorder) openCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// echoServer replies to every text frame with "echo:<frame>" and answers
// "binary" with a binary frame and "bye" with a close frame.
func echoServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch string(data) {
			case "binary":
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
			case "bye":
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "target closed"))
				return
			default:
				_ = conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), data...))
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestWebSocket() *WebSocket {
	return NewWebSocket(Options{
		Logger:         logging.NewNop(),
		Metrics:        monitoring.NewMetrics(),
		ReconnectEvery: time.Millisecond,
	})
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler callback")
		var zero T
		return zero
	}
}

func TestWebSocketSendReceive(t *testing.T) {
	_, url := echoServer(t)
	ws := newTestWebSocket()
	rec := newRecorder()
	ws.SetHandler(rec)

	require.NoError(t, ws.Connect(context.Background(), url))
	defer ws.Close()

	assert.True(t, ws.IsOpen())
	assert.Equal(t, 1, rec.openCount())
	assert.Equal(t, url, ws.URL())

	require.NoError(t, ws.Send(context.Background(), []byte(`{"id":1}`)))
	assert.Equal(t, `echo:{"id":1}`, recv(t, rec.texts))

	require.NoError(t, ws.Send(context.Background(), []byte("binary")))
	assert.Equal(t, []byte{1, 2, 3}, recv(t, rec.binary))
}

func TestWebSocketSendBeforeConnect(t *testing.T) {
	ws := newTestWebSocket()
	err := ws.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, ws.IsOpen())
}

func TestWebSocketRemoteClose(t *testing.T) {
	_, url := echoServer(t)
	ws := newTestWebSocket()
	rec := newRecorder()
	ws.SetHandler(rec)

	require.NoError(t, ws.Connect(context.Background(), url))
	defer ws.Close()

	require.NoError(t, ws.Send(context.Background(), []byte("bye")))
	assert.Equal(t, websocket.CloseGoingAway, recv(t, rec.closes))
	assert.False(t, ws.IsOpen())
	assert.ErrorIs(t, ws.Send(context.Background(), []byte("x")), ErrNotConnected)
}

func TestWebSocketReconnect(t *testing.T) {
	_, url := echoServer(t)
	ws := newTestWebSocket()
	rec := newRecorder()
	ws.SetHandler(rec)

	require.NoError(t, ws.Connect(context.Background(), url))
	defer ws.Close()

	require.NoError(t, ws.Send(context.Background(), []byte("bye")))
	recv(t, rec.closes)

	require.NoError(t, ws.Reconnect(context.Background()))
	assert.True(t, ws.IsOpen())
	assert.Equal(t, 2, rec.openCount())

	require.NoError(t, ws.Send(context.Background(), []byte("again")))
	assert.Equal(t, "echo:again", recv(t, rec.texts))
}

func TestWebSocketReconnectWithoutEndpoint(t *testing.T) {
	ws := newTestWebSocket()
	assert.ErrorIs(t, ws.Reconnect(context.Background()), ErrNoEndpoint)
}

func TestWebSocketClose(t *testing.T) {
	_, url := echoServer(t)
	ws := newTestWebSocket()
	rec := newRecorder()
	ws.SetHandler(rec)

	require.NoError(t, ws.Connect(context.Background(), url))
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	recv(t, rec.closes)
	assert.ErrorIs(t, ws.Send(context.Background(), []byte("x")), ErrClosed)
	assert.ErrorIs(t, ws.Connect(context.Background(), url), ErrClosed)
}

func TestWebSocketDialFailure(t *testing.T) {
	ws := newTestWebSocket()
	err := ws.Connect(context.Background(), "ws://127.0.0.1:1/devtools/browser/x")
	assert.Error(t, err)
	assert.False(t, ws.IsOpen())
}
