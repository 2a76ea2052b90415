package wsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-notify/internal/models"
)

const waitFor = 2 * time.Second

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return t.stopped.CompareAndSwap(false, true)
}

func (t *fakeTimer) Fire() {
	if !t.stopped.Load() {
		t.fn()
	}
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) Last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

type failingDialer struct {
	calls atomic.Int32
}

func (d *failingDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	d.calls.Add(1)
	return nil, errors.New("connection refused")
}

type stubFetcher struct {
	mu     sync.Mutex
	tokens []string
	tasks  []models.Task
}

func (f *stubFetcher) FetchTasks(ctx context.Context, token string) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.tasks, nil
}

type wsServer struct {
	*httptest.Server
	conns  chan *websocket.Conn
	tokens chan string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	s := &wsServer{conns: make(chan *websocket.Conn, 8), tokens: make(chan string, 8)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.tokens <- r.URL.Query().Get("token")
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) URLString() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitFor):
		t.Fatal("client never connected")
		return nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestManager_ConnectSubscribesAndHandlesTaskUpdate(t *testing.T) {
	srv := newWSServer(t)
	fetcher := &stubFetcher{tasks: []models.Task{{ID: 1, UserID: 7, Title: "Comprar pan"}}}
	toasts := make(chan string, 4)
	lists := make(chan []models.Task, 4)

	m := NewManager(Options{
		URL:     srv.URLString(),
		UserID:  7,
		Token:   "tok",
		Fetcher: fetcher,
		OnToast: func(msg string) { toasts <- msg },
		OnTasks: func(tasks []models.Task) { lists <- tasks },
	})
	defer m.Disconnect()

	m.Connect()
	conn := srv.accept(t)
	assert.Equal(t, "tok", <-srv.tokens)
	assert.JSONEq(t, `{"type":"subscribe","userId":7}`, readFrame(t, conn))
	require.Eventually(t, func() bool { return m.State() == StateOpen }, waitFor, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribed","userId":7}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"task_update","action":"created","task":{"id":1,"user_id":7,"title":"Comprar pan","status":"pending"}}`)))

	select {
	case msg := <-toasts:
		assert.Equal(t, `Tarea "Comprar pan" ha sido creada`, msg)
	case <-time.After(waitFor):
		t.Fatal("no toast")
	}
	select {
	case tasks := <-lists:
		require.Len(t, tasks, 1)
		assert.Equal(t, "Comprar pan", tasks[0].Title)
	case <-time.After(waitFor):
		t.Fatal("tasks were not refreshed")
	}
	fetcher.mu.Lock()
	assert.Equal(t, []string{"tok"}, fetcher.tokens)
	fetcher.mu.Unlock()

	assert.True(t, m.Ping())
	assert.JSONEq(t, `{"type":"ping"}`, readFrame(t, conn))
	assert.Equal(t, StateOpen, m.State())

	m.Disconnect()
	assert.Equal(t, StateStopped, m.State())
	assert.False(t, m.SendMessage(map[string]string{"type": "ping"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	m.Disconnect()
	assert.Equal(t, StateStopped, m.State())
}

func TestManager_ReconnectsAfterServerClose(t *testing.T) {
	srv := newWSServer(t)
	clock := &fakeClock{}
	var states []State
	var statesMu sync.Mutex

	m := NewManager(Options{
		URL:       srv.URLString(),
		UserID:    7,
		Token:     "tok",
		AfterFunc: clock.AfterFunc,
		OnStateChange: func(s State) {
			statesMu.Lock()
			states = append(states, s)
			statesMu.Unlock()
		},
	})
	defer m.Disconnect()

	m.Connect()
	first := srv.accept(t)
	readFrame(t, first)
	require.Eventually(t, func() bool { return m.State() == StateOpen }, waitFor, 10*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return m.State() == StateAwaitingRetry }, waitFor, 10*time.Millisecond)
	assert.Equal(t, 1, m.Attempts())
	require.Equal(t, 1, clock.Len())
	assert.Equal(t, 2*time.Second, clock.Last().delay)

	clock.Last().Fire()
	second := srv.accept(t)
	assert.JSONEq(t, `{"type":"subscribe","userId":7}`, readFrame(t, second))
	require.Eventually(t, func() bool { return m.State() == StateOpen }, waitFor, 10*time.Millisecond)
	assert.Equal(t, 0, m.Attempts())

	require.Eventually(t, func() bool {
		statesMu.Lock()
		defer statesMu.Unlock()
		return len(states) == 5
	}, waitFor, 10*time.Millisecond)
	statesMu.Lock()
	defer statesMu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateOpen, StateAwaitingRetry, StateConnecting, StateOpen}, states)
}

func TestManager_DialFailuresStopAfterCeiling(t *testing.T) {
	clock := &fakeClock{}
	dialer := &failingDialer{}

	m := NewManager(Options{
		URL:       "ws://127.0.0.1:1/ws",
		UserID:    7,
		Token:     "tok",
		Dialer:    dialer,
		AfterFunc: clock.AfterFunc,
	})

	m.Connect()

	expected := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for i, want := range expected {
		require.Eventually(t, func() bool { return clock.Len() == i+1 }, waitFor, 5*time.Millisecond)
		assert.Equal(t, want, clock.Last().delay)
		clock.Last().Fire()
	}

	require.Eventually(t, func() bool {
		return dialer.calls.Load() == 6 && m.State() == StateDisconnected
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 5, clock.Len())
	assert.Equal(t, 5, m.Attempts())

	// an explicit connect starts over
	m.Connect()
	require.Eventually(t, func() bool { return clock.Len() == 6 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2*time.Second, clock.Last().delay)
	assert.Equal(t, 1, m.Attempts())
	assert.Equal(t, int32(7), dialer.calls.Load())

	pending := clock.Last()
	m.Disconnect()
	assert.True(t, pending.stopped.Load())
	assert.Equal(t, StateStopped, m.State())

	// a timer callback that raced the cancel is ignored
	pending.fn()
	assert.Equal(t, StateStopped, m.State())
	assert.Equal(t, int32(7), dialer.calls.Load())
}

func TestManager_RejectedHandshakeTakesRetryPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()
	clock := &fakeClock{}

	m := NewManager(Options{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		UserID:    7,
		Token:     "bad",
		AfterFunc: clock.AfterFunc,
	})
	defer m.Disconnect()

	m.Connect()
	require.Eventually(t, func() bool { return m.State() == StateAwaitingRetry }, waitFor, 10*time.Millisecond)
	assert.Equal(t, 1, clock.Len())
}

func TestManager_ConnectWithoutCredentialsIsNoop(t *testing.T) {
	dialer := &failingDialer{}

	for _, opts := range []Options{
		{URL: "ws://localhost/ws", Token: "tok", Dialer: dialer},
		{URL: "ws://localhost/ws", UserID: 7, Dialer: dialer},
	} {
		m := NewManager(opts)
		m.Connect()
		assert.Equal(t, StateDisconnected, m.State())
		assert.False(t, m.SendMessage(map[string]string{"type": "ping"}))
		m.Disconnect()
	}
	assert.Equal(t, int32(0), dialer.calls.Load())
}

func TestWithToken(t *testing.T) {
	assert.Equal(t, "ws://localhost:3002/ws?token=abc", withToken("ws://localhost:3002/ws", "abc"))
	assert.Equal(t, "ws://localhost:3002", withToken("ws://localhost:3002", ""))
}
