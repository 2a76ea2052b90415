package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"task-notify/internal/models"
	"task-notify/pkg/logger"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	readLimit        = 1 << 20

	defaultFetchTimeout = 10 * time.Second
)

const (
	typeSubscribe  = "subscribe"
	typePing       = "ping"
	typeSubscribed = "subscribed"
	typePong       = "pong"
	typeTaskUpdate = "task_update"
)

var ErrNotConnected = errors.New("websocket not connected")

// Transport is one established WebSocket connection.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Transport. A handshake rejection is returned as an error.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Transport, error)
}

// Timer is the subset of *time.Timer the manager uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is used when unset.
type AfterFunc func(d time.Duration, f func()) Timer

// Options configure a Manager. UserID and Token are both required for
// Connect to do anything.
type Options struct {
	URL                  string
	UserID               uint
	Token                string
	MaxReconnectAttempts int

	Dialer    Dialer
	Fetcher   TaskFetcher
	AfterFunc AfterFunc
	Logger    *logger.Logger

	FetchTimeout time.Duration

	OnToast       func(message string)
	OnTasks       func(tasks []models.Task)
	OnStateChange func(state State)
}

type subscribeMessage struct {
	Type   string `json:"type"`
	UserID uint   `json:"userId"`
}

type serverMessage struct {
	Type   string            `json:"type"`
	Action models.TaskAction `json:"action"`
	Task   models.Task       `json:"task"`
	UserID json.RawMessage   `json:"userId"`
}

// Manager keeps one WebSocket session to the notification server alive,
// reconnecting with capped exponential backoff. All transitions go through
// Transition under mu; the manager only executes the resulting effects.
type Manager struct {
	opts      Options
	log       *logger.Logger
	url       string
	afterFunc AfterFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	session      Session
	transport    Transport
	transportGen uint64
	timer        Timer
	dials        []uint64
}

func NewManager(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	af := opts.AfterFunc
	if af == nil {
		af = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:      opts,
		log:       log.Named("wsclient"),
		url:       withToken(opts.URL, opts.Token),
		afterFunc: af,
		ctx:       ctx,
		cancel:    cancel,
		session:   NewSession(opts.MaxReconnectAttempts),
	}
}

// Connect starts a session. It resets the reconnect counter and is a no-op
// while already connecting or open, after Disconnect, or without credentials.
func (m *Manager) Connect() {
	m.apply(Event{Kind: EventConnect, HasCredentials: m.opts.UserID != 0 && m.opts.Token != ""})
}

// Disconnect tears the session down for good. Safe to call more than once.
func (m *Manager) Disconnect() {
	m.apply(Event{Kind: EventDisconnect})
	m.cancel()
}

// SendMessage writes payload as JSON while the session is open. It reports
// whether the frame was written; otherwise the payload is dropped.
func (m *Manager) SendMessage(payload interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State != StateOpen || m.transport == nil {
		return false
	}
	return m.writeLocked(payload) == nil
}

func (m *Manager) Ping() bool {
	return m.SendMessage(map[string]string{"type": typePing})
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Attempts
}

func (m *Manager) apply(ev Event) {
	m.mu.Lock()
	m.finish(m.applyLocked(ev))
}

// finish releases mu, reports the state change and only then starts the dials
// the transition asked for, so observers see Connecting before Open.
func (m *Manager) finish(state State, changed bool) {
	dials := m.dials
	m.dials = nil
	m.mu.Unlock()

	m.emit(state, changed)
	for _, gen := range dials {
		go m.dial(gen)
	}
}

func (m *Manager) applyLocked(ev Event) (State, bool) {
	prev := m.session.State
	next, effects := Transition(m.session, ev)
	m.session = next
	for _, eff := range effects {
		m.runLocked(eff)
	}
	return next.State, next.State != prev
}

func (m *Manager) runLocked(eff Effect) {
	switch eff.Kind {
	case EffectDial:
		m.dials = append(m.dials, eff.Generation)

	case EffectSendSubscribe:
		if err := m.writeLocked(subscribeMessage{Type: typeSubscribe, UserID: m.opts.UserID}); err != nil {
			m.log.Warn("Failed to send subscribe", "error", err)
		}

	case EffectScheduleRetry:
		gen := eff.Generation
		m.log.Info("Scheduling reconnect", "attempt", m.session.Attempts, "maxAttempts", m.session.MaxAttempts, "delay", eff.Delay)
		m.timer = m.afterFunc(eff.Delay, func() {
			m.apply(Event{Kind: EventRetryFired, Generation: gen})
		})

	case EffectCancelRetry:
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}

	case EffectCloseTransport:
		if m.transport != nil && m.transportGen == eff.Generation {
			t := m.transport
			m.transport = nil
			_ = t.Close()
		}
	}
}

func (m *Manager) emit(state State, changed bool) {
	if changed && m.opts.OnStateChange != nil {
		m.opts.OnStateChange(state)
	}
}

func (m *Manager) dial(gen uint64) {
	t, err := m.opts.Dialer.Dial(m.ctx, m.url)

	m.mu.Lock()
	if err != nil {
		if gen == m.session.Generation {
			m.log.Warn("WebSocket dial failed", "error", err)
		}
		m.finish(m.applyLocked(Event{Kind: EventClosed, Generation: gen}))
		return
	}

	if gen != m.session.Generation || m.session.State != StateConnecting {
		m.mu.Unlock()
		_ = t.Close()
		return
	}

	m.transport, m.transportGen = t, gen
	m.finish(m.applyLocked(Event{Kind: EventOpened, Generation: gen}))

	m.log.Info("WebSocket connected", "url", m.opts.URL)
	go m.readLoop(gen, t)
}

func (m *Manager) readLoop(gen uint64, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if m.transport == t {
				m.transport = nil
			}
			if gen == m.session.Generation {
				m.log.Info("WebSocket closed", "error", err)
			}
			m.finish(m.applyLocked(Event{Kind: EventClosed, Generation: gen}))
			_ = t.Close()
			return
		}

		if !m.isCurrent(gen) {
			continue
		}
		m.handleMessage(data)
	}
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.session.Generation && m.session.State == StateOpen
}

func (m *Manager) handleMessage(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.log.Debug("Ignoring malformed message", "error", err)
		return
	}

	switch msg.Type {
	case typeTaskUpdate:
		m.log.Info("Task update received", "action", msg.Action, "taskID", msg.Task.ID)
		if m.opts.OnToast != nil {
			m.opts.OnToast(ToastMessage(msg.Task.Title, msg.Action))
		}
		m.refreshTasks()
	case typeSubscribed:
		m.log.Debug("Subscribed to notifications", "userID", string(msg.UserID))
	case typePong:
		m.log.Debug("Pong received")
	default:
		m.log.Debug("Ignoring unknown message type", "type", msg.Type)
	}
}

func (m *Manager) refreshTasks() {
	if m.opts.Fetcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.FetchTimeout)
	defer cancel()

	tasks, err := m.opts.Fetcher.FetchTasks(ctx, m.opts.Token)
	if err != nil {
		m.log.Warn("Failed to refresh tasks", "error", err)
		return
	}
	if m.opts.OnTasks != nil {
		m.opts.OnTasks(tasks)
	}
}

func (m *Manager) writeLocked(payload interface{}) error {
	if m.transport == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.transport.WriteMessage(data)
}

func withToken(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// GorillaDialer dials with gorilla/websocket.
type GorillaDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d GorillaDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	conn, _, err := dialer.DialContext(ctx, rawURL, d.Header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &gorillaTransport{conn: conn}, nil
}

type gorillaTransport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (t *gorillaTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *gorillaTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *gorillaTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
