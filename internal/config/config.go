package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/Amatex1/pryde-backend-sub002/pkg/config"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Dedup     DedupConfig
	UserCache UserCacheConfig `mapstructure:"user_cache"`
	Platform  PlatformConfig
	Log       LogConfig
}

// PlatformConfig locates the platform core API (document store, user
// directory, token verification, push gateway).
type PlatformConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// RedisConfig configures the optional shared backend. An empty Address
// selects the in-process fallback stores.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type RateLimitConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type DedupConfig struct {
	BucketWidth   time.Duration `mapstructure:"bucket_width"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type UserCacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.sweep_interval", "30s")
	v.SetDefault("dedup.bucket_width", "5s")
	v.SetDefault("dedup.ttl", "30s")
	v.SetDefault("dedup.sweep_interval", "30s")
	v.SetDefault("user_cache.ttl", "5m")
	v.SetDefault("user_cache.sweep_interval", "1m")
	v.SetDefault("platform.base_url", "http://localhost:8080")
	v.SetDefault("platform.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("platform.base_url", "PLATFORM_BASE_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.RateLimit.SweepInterval = parseDuration(v, "rate_limit.sweep_interval", 30*time.Second)
	cfg.Dedup.BucketWidth = parseDuration(v, "dedup.bucket_width", 5*time.Second)
	cfg.Dedup.TTL = parseDuration(v, "dedup.ttl", 30*time.Second)
	cfg.Dedup.SweepInterval = parseDuration(v, "dedup.sweep_interval", 30*time.Second)
	cfg.UserCache.TTL = parseDuration(v, "user_cache.ttl", 5*time.Minute)
	cfg.UserCache.SweepInterval = parseDuration(v, "user_cache.sweep_interval", time.Minute)
	cfg.Platform.Timeout = parseDuration(v, "platform.timeout", 10*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
