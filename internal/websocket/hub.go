package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"task-notify/internal/auth"
	"task-notify/internal/models"
	"task-notify/pkg/logger"
	"task-notify/pkg/metrics"

	"github.com/gorilla/websocket"
)

type HubOptions struct {
	AllowedOrigins []string
	// Authenticator verifies an optional token presented at upgrade time.
	Authenticator auth.Authenticator
	// RequireAuth refuses upgrades that carry no valid token.
	RequireAuth bool
	Metrics     *metrics.Metrics
}

// Hub owns the realtime side: the connection registry, the subscription map
// and the dispatcher that joins them.
type Hub struct {
	registry      *Registry
	subs          *SubscriptionMap
	dispatcher    *Dispatcher
	upgrader      websocket.Upgrader
	authenticator auth.Authenticator
	requireAuth   bool
	logger        *logger.Logger
	metrics       *metrics.Metrics

	wg sync.WaitGroup
}

func NewHub(opts HubOptions, log *logger.Logger) *Hub {
	registry := NewRegistry(log, opts.Metrics)
	subs := NewSubscriptionMap()

	h := &Hub{
		registry:      registry,
		subs:          subs,
		dispatcher:    NewDispatcher(registry, subs, log, opts.Metrics),
		authenticator: opts.Authenticator,
		requireAuth:   opts.RequireAuth,
		logger:        log,
		metrics:       opts.Metrics,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	registry.OnUnregister(func(handle Handle) {
		if userID, ok := subs.UnsubscribeByHandle(handle); ok {
			log.Info("Subscription removed", "userID", userID, "clientID", handle)
		}
		opts.Metrics.SetSubscriptions(subs.Count())
	})

	return h
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Subscriptions() *SubscriptionMap { return h.subs }
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Notify forwards to the dispatcher; Hub satisfies the event bus notifier.
func (h *Hub) Notify(ctx context.Context, userID string, task models.Task, action models.TaskAction) {
	h.dispatcher.Notify(ctx, userID, task, action)
}

// ServeWS upgrades the request and starts the connection's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	authUser, err := h.authenticate(r)
	if err != nil {
		h.logger.Info("Rejected WebSocket upgrade", "remoteAddr", r.RemoteAddr, "error", err)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade WebSocket connection", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(h, conn, authUser)
	client.handle = h.registry.Register(client)

	h.wg.Add(2)
	go client.writePump()
	go client.readPump()
}

func (h *Hub) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}

	if token == "" || h.authenticator == nil {
		if h.requireAuth {
			return "", auth.ErrUnauthorized
		}
		return "", nil
	}

	userID, err := h.authenticator.Authenticate(token)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(userID), 10), nil
}

// Shutdown closes every connection and waits for their goroutines to exit.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("WebSocket hub stopped")
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("websocket hub shutdown timed out"), ctx.Err())
	}
}

// originChecker accepts non-browser clients (no Origin), configured origins,
// and any localhost origin for development. "*" accepts everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1"
	}
}
