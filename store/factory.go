package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config selects the job store backend.
type Config struct {
	// Type is memory, database or redis.
	Type Type `yaml:"type" json:"type" env:"TYPE"`
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
}

// DefaultConfig returns the in-memory store configuration.
func DefaultConfig() Config {
	return Config{Type: TypeMemory, KeyPrefix: DefaultRedisKeyPrefix}
}

// Backends carries the connections a store may be built on.
type Backends struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *zap.Logger
}

// New creates a JobStore based on the configuration.
func New(cfg Config, b Backends) (JobStore, error) {
	switch cfg.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeDatabase:
		if b.DB == nil {
			return nil, fmt.Errorf("store type %s requires a database connection", cfg.Type)
		}
		return NewGormStore(b.DB, b.Logger), nil
	case TypeRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("store type %s requires a redis connection", cfg.Type)
		}
		return NewRedisStore(b.Redis, cfg.KeyPrefix, b.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported job store type: %s", cfg.Type)
	}
}
