package websocket

import (
	"sync"

	"task-notify/pkg/logger"
	"task-notify/pkg/metrics"

	"github.com/google/uuid"
)

// Handle identifies one accepted connection for its whole lifetime.
type Handle string

// Conn is the push side of a live transport.
type Conn interface {
	Send(payload []byte) error
	Close() error
	// AuthenticatedUser is the user bound by a token at upgrade time, if any.
	AuthenticatedUser() (string, bool)
}

// Registry tracks live connections. A handle is push-eligible from Register
// until Unregister.
type Registry struct {
	mu           sync.RWMutex
	conns        map[Handle]Conn
	onUnregister []func(Handle)
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewRegistry(log *logger.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		conns:   make(map[Handle]Conn),
		logger:  log,
		metrics: m,
	}
}

// OnUnregister adds a hook run once for every handle that leaves the registry.
func (r *Registry) OnUnregister(fn func(Handle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUnregister = append(r.onUnregister, fn)
}

func (r *Registry) Register(conn Conn) Handle {
	h := Handle(uuid.New().String())

	r.mu.Lock()
	r.conns[h] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	r.logger.Info("Client registered", "clientID", h, "connections", total)
	return h
}

// Unregister is idempotent; unknown handles are ignored.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	if _, ok := r.conns[h]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, h)
	hooks := make([]func(Handle), len(r.onUnregister))
	copy(hooks, r.onUnregister)
	total := len(r.conns)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(h)
	}

	r.metrics.ConnectionClosed()
	r.logger.Info("Client unregistered", "clientID", h, "connections", total)
}

func (r *Registry) Get(h Handle) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[h]
	return conn, ok
}

func (r *Registry) Alive(h Handle) bool {
	_, ok := r.Get(h)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every live transport. Each connection unregisters itself once
// its read loop observes the close.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
