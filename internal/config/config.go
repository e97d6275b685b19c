package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/streamnest/live-session-service/internal/reward"
	pkgconfig "github.com/streamnest/live-session-service/pkg/config"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Session   SessionConfig
	Chat      ChatConfig
	Invite    InviteConfig
	Reward    reward.Config
	Log       LogConfig
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

type SessionConfig struct {
	// Retention is how long an ended session stays readable before it
	// is removed from the active registry.
	Retention              time.Duration `mapstructure:"retention"`
	DefaultMaxParticipants int           `mapstructure:"default_max_participants"`
}

type ChatConfig struct {
	MaxMessageLength int `mapstructure:"max_message_length"`
	MaxEmojiLength   int `mapstructure:"max_emoji_length"`
	HistoryLimit     int `mapstructure:"history_limit"`
}

type InviteConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("session.retention", "2m")
	v.SetDefault("session.default_max_participants", 10)
	v.SetDefault("chat.max_message_length", 2000)
	v.SetDefault("chat.max_emoji_length", 8)
	v.SetDefault("chat.history_limit", 100)
	v.SetDefault("invite.default_ttl", "5m")
	v.SetDefault("invite.sweep_interval", "1m")
	v.SetDefault("reward.per_minute_rate", 150)
	v.SetDefault("reward.engagement_multiplier", 0.25)
	v.SetDefault("reward.default_currency", "USD")
	v.SetDefault("reward.retention_days", 90)
	v.SetDefault("reward.tiers", []map[string]interface{}{
		{"min_participants": 1, "rate": 200},
		{"min_participants": 6, "rate": 350},
		{"min_participants": 16, "rate": 500},
		{"min_participants": 31, "rate": 750},
		{"min_participants": 51, "rate": 1000},
	})
	v.SetDefault("log.level", "info")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("session.retention", "SESSION_RETENTION")
	v.BindEnv("invite.default_ttl", "INVITE_DEFAULT_TTL")
	v.BindEnv("invite.sweep_interval", "INVITE_SWEEP_INTERVAL")
	v.BindEnv("reward.per_minute_rate", "REWARD_PER_MINUTE_RATE")
	v.BindEnv("reward.engagement_multiplier", "REWARD_ENGAGEMENT_MULTIPLIER")
	v.BindEnv("reward.default_currency", "REWARD_CURRENCY")
	v.BindEnv("reward.retention_days", "REWARD_RETENTION_DAYS")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Session.Retention = parseDuration(v, "session.retention", 2*time.Minute)
	cfg.Invite.DefaultTTL = parseDuration(v, "invite.default_ttl", 5*time.Minute)
	cfg.Invite.SweepInterval = parseDuration(v, "invite.sweep_interval", time.Minute)

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
