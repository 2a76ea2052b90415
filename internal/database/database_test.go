package database

import (
	"context"
	"path/filepath"
	"testing"

	"task-notify/internal/config"
	"task-notify/internal/models"
	"task-notify/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnection_SQLiteMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "db.sqlite")
	db, err := NewConnection(config.DatabaseConfig{Driver: config.DriverSQLite, Path: path}, logger.Nop())
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&models.User{}))
	assert.True(t, db.Migrator().HasTable(&models.Task{}))
	assert.True(t, db.Migrator().HasIndex(&models.Task{}, "idx_tasks_user_status"))
}

func TestNewConnection_UnsupportedDriver(t *testing.T) {
	_, err := NewConnection(config.DatabaseConfig{Driver: "oracle"}, logger.Nop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestNewRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisConnection(config.RedisConfig{Addr: mr.Addr()}, logger.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.GetClient().Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisConnection(config.RedisConfig{Addr: addr, MaxRetries: -1}, logger.Nop())
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
