package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-notify/internal/api/handlers"
	"task-notify/internal/api/routes"
	"task-notify/internal/auth"
	"task-notify/internal/config"
	"task-notify/internal/database"
	"task-notify/internal/events"
	"task-notify/internal/repositories"
	"task-notify/internal/services"
	"task-notify/internal/websocket"
	"task-notify/pkg/logger"
	"task-notify/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	listenersAll  = "all"
	listenersREST = "rest"
	listenersWS   = "ws"

	shutdownTimeout = 30 * time.Second
)

func serveCmd() *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST and WebSocket listeners",
		Long: `Start the REST API and the realtime WebSocket listener.

Both listeners run in one process by default. With a redis or kafka
events bus they can run as separate processes:
  task-notify serve --only rest
  task-notify serve --only ws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch only {
			case listenersAll, listenersREST, listenersWS:
			default:
				return fmt.Errorf("--only must be one of all, rest, ws")
			}
			return runServe(cmd.Context(), only)
		},
	}

	cmd.Flags().StringVar(&only, "only", listenersAll, "listeners to start: all, rest or ws")
	return cmd
}

// loadRuntime reads config and builds the logger shared by every subcommand.
func loadRuntime() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func runServe(parent context.Context, only string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer log.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	var redisClient *database.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewRedisConnection(cfg.Redis, log.Named("redis"))
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	bus, err := events.NewBus(cfg.Events, redisClient, log.Named("events"))
	if err != nil {
		return err
	}
	defer bus.Close()

	if only == listenersREST && cfg.Events.Bus == config.BusMemory {
		log.Warn("REST-only process with the memory bus: task notifications will not reach any WebSocket listener")
	}

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpirationTime)

	var servers []*http.Server
	var hub *websocket.Hub

	if only == listenersAll || only == listenersWS {
		hub = websocket.NewHub(websocket.HubOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Authenticator:  tokens,
			RequireAuth:    cfg.Server.WSRequireAuth,
			Metrics:        m,
		}, log.Named("ws"))

		if err := bus.Subscribe(ctx, events.DispatchTo(hub)); err != nil {
			return err
		}

		servers = append(servers, &http.Server{
			Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.WSPort),
			Handler:     routes.NewWSEngine(hub, m),
			ReadTimeout: cfg.Server.ReadTimeout,
		})
	}

	if only == listenersAll || only == listenersREST {
		db, err := database.NewConnection(cfg.Database, log.Named("db"))
		if err != nil {
			return err
		}
		defer database.Close(db)

		var limiter *services.RateLimiter
		health := map[string]handlers.Pinger{"database": database.SQLPinger{DB: db}}
		if redisClient != nil {
			limiter = services.NewRateLimiter(redisClient)
			health["redis"] = redisClient
		}

		router := routes.NewRouter(routes.Dependencies{
			UserService:    services.NewUserService(repositories.NewUserRepository(db), tokens, log.Named("users")),
			TaskService:    services.NewTaskService(repositories.NewTaskRepository(db), events.NewBusNotifier(bus, log.Named("events")), log.Named("tasks")),
			Authenticator:  tokens,
			RateLimiter:    limiter,
			Metrics:        m,
			HealthChecks:   health,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         log,
		})
		router.SetupRoutes()

		servers = append(servers, &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:      router.GetEngine(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info("Server starting", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Server shutting down...")
	case runErr = <-errCh:
		log.Error("Server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", "address", srv.Addr, "error", err)
		}
	}
	// hijacked WebSocket connections are not closed by http.Server.Shutdown
	if hub != nil {
		if err := hub.Shutdown(shutdownCtx); err != nil {
			log.Error("WebSocket hub shutdown incomplete", "error", err)
		}
	}

	log.Info("Server stopped")
	return runErr
}
