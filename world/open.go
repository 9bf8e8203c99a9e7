package world

import (
	"context"
	"fmt"
)

// Backend kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindRedis    = "redis"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Kind        string
	SQLitePath  string
	PostgresDSN string
	Redis       RedisConfig
}

// Open creates the backend described by cfg. An empty kind selects memory.
func Open(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case "", KindMemory:
		return NewMemoryBackend(), nil
	case KindSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("world: sqlite backend requires a path")
		}
		return NewSQLiteBackend(ctx, cfg.SQLitePath)
	case KindPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("world: postgres backend requires a dsn")
		}
		return NewPostgresBackend(ctx, cfg.PostgresDSN)
	case KindRedis:
		return NewRedisBackend(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("world: unknown backend %q", cfg.Kind)
	}
}
