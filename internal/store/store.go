// Package store persists conversation threads in memory, SQLite or Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

// ErrNotFound is returned when deleting a thread that holds no messages.
var ErrNotFound = errors.New("thread not found")

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Store is an agent.Store that can also forget threads.
type Store interface {
	agent.Store
	Delete(ctx context.Context, threadID string) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path          string        `yaml:"path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// Open builds the Store named by cfg.Driver. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case DriverRedis:
		return NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, WithTTL(cfg.TTL))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
