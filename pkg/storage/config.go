package storage

import "time"

// RedisConfig holds the Redis connection settings for RedisStore.
type RedisConfig struct {
	ConnectionURL  string        `env:"NOTIFY_REDIS_URL" envDefault:"redis://localhost:6379/0"` // Format "redis://:password@host:6379/0".
	RetryAttempts  int           `env:"NOTIFY_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"NOTIFY_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"NOTIFY_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// PostgresConfig holds the Postgres connection settings for PostgresStore.
type PostgresConfig struct {
	ConnectionString string        `env:"NOTIFY_PG_CONN_URL,required"`
	MaxOpenConns     int32         `env:"NOTIFY_PG_MAX_OPEN_CONNS" envDefault:"10"`
	MinIdleConns     int32         `env:"NOTIFY_PG_MIN_IDLE_CONNS" envDefault:"2"`
	RetryAttempts    int           `env:"NOTIFY_PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"NOTIFY_PG_RETRY_INTERVAL" envDefault:"5s"`
}
