package config

import (
	"fmt"
	"strings"
	"time"

	"task-notify/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Events   EventsConfig
	Logger   logger.Config
	Metrics  MetricsConfig
	Client   ClientConfig
}

type ServerConfig struct {
	Host           string
	Port           string // REST API
	WSPort         string // realtime notifications
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	WSRequireAuth  bool
}

type DatabaseConfig struct {
	Driver   string // postgres, mysql, sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite file, ":memory:" allowed
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	ExpirationTime time.Duration
}

type EventsConfig struct {
	Bus          string // memory, redis, kafka
	RedisChannel string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// ClientConfig is read by the taskwatch CLI.
type ClientConfig struct {
	APIURL               string
	WSURL                string
	MaxReconnectAttempts int
}

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"

	BusMemory = "memory"
	BusRedis  = "redis"
	BusKafka  = "kafka"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("WS_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("WS_REQUIRE_AUTH", false)

	v.SetDefault("DB_CONNECTION", DriverSQLite)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "")
	v.SetDefault("DB_USERNAME", "root")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_DATABASE", "mini_task_manager")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "database/db.sqlite")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	v.SetDefault("JWT_SECRET", "secret")
	v.SetDefault("JWT_ISSUER", "mini-task-manager")
	v.SetDefault("JWT_EXPIRATION", 24*time.Hour)

	v.SetDefault("EVENTS_BUS", BusMemory)
	v.SetDefault("EVENTS_REDIS_CHANNEL", "tasks:events")
	v.SetDefault("EVENTS_KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "task-events")
	v.SetDefault("EVENTS_KAFKA_GROUP_ID", "task-notify-ws")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("LOG_FILE_PATH", "logs/task-notify.log")

	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_NAMESPACE", "taskmanager")

	v.SetDefault("CLIENT_API_URL", "http://localhost:8000/api")
	v.SetDefault("CLIENT_WS_URL", "ws://localhost:8080")
	v.SetDefault("CLIENT_MAX_RECONNECT_ATTEMPTS", 5)
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetString("SERVER_PORT"),
			WSPort:         v.GetString("WS_PORT"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:    v.GetDuration("SERVER_IDLE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
			WSRequireAuth:  v.GetBool("WS_REQUIRE_AUTH"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("DB_CONNECTION")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USERNAME"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_DATABASE"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			Path:     v.GetString("DB_PATH"),
		},
		Redis: RedisConfig{
			Addr:         v.GetString("REDIS_ADDR"),
			Password:     v.GetString("REDIS_PASSWORD"),
			DB:           v.GetInt("REDIS_DB"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			Issuer:         v.GetString("JWT_ISSUER"),
			ExpirationTime: v.GetDuration("JWT_EXPIRATION"),
		},
		Events: EventsConfig{
			Bus:          strings.ToLower(v.GetString("EVENTS_BUS")),
			RedisChannel: v.GetString("EVENTS_REDIS_CHANNEL"),
			KafkaBrokers: splitList(v.GetString("EVENTS_KAFKA_BROKERS")),
			KafkaTopic:   v.GetString("EVENTS_KAFKA_TOPIC"),
			KafkaGroupID: v.GetString("EVENTS_KAFKA_GROUP_ID"),
		},
		Logger: logger.Config{
			Level:    v.GetString("LOG_LEVEL"),
			Format:   v.GetString("LOG_FORMAT"),
			Output:   v.GetString("LOG_OUTPUT"),
			FilePath: v.GetString("LOG_FILE_PATH"),
		},
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("METRICS_ENABLED"),
			Namespace: v.GetString("METRICS_NAMESPACE"),
		},
		Client: ClientConfig{
			APIURL:               v.GetString("CLIENT_API_URL"),
			WSURL:                v.GetString("CLIENT_WS_URL"),
			MaxReconnectAttempts: v.GetInt("CLIENT_MAX_RECONNECT_ATTEMPTS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Events.Bus {
	case BusMemory:
	case BusRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("events bus %q requires REDIS_ADDR", c.Events.Bus)
		}
	case BusKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("events bus %q requires EVENTS_KAFKA_BROKERS", c.Events.Bus)
		}
	default:
		return fmt.Errorf("unsupported events bus %q", c.Events.Bus)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.Server.Port == c.Server.WSPort {
		return fmt.Errorf("WS_PORT must differ from SERVER_PORT")
	}
	return nil
}

// DSN returns the driver-specific connection string.
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		port := c.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, port, c.User, c.Password, c.DBName, c.SSLMode)
	case DriverMySQL:
		port := c.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, port, c.DBName)
	case DriverSQLite:
		return c.Path
	default:
		return ""
	}
}

// Enabled reports whether a Redis server is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
