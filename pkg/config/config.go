package config

import (
	"strings"
	"time"
)

// productionOrigins web clients allowed in production when cors_origins is not set
var productionOrigins = []string{"https://quickchat-nine.vercel.app", "http://localhost:5173"}

// Chat definition chat_service YAML structure
type Chat struct {
	Port           string        `mapstructure:"port"`
	GRPCPort       string        `mapstructure:"grpc_port"`
	BodyLimit      int           `mapstructure:"body_limit"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Pprof          bool          `mapstructure:"pprof"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`

	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	Events     EventConfig    `mapstructure:"events"`
	Realtime   RealtimeConfig `mapstructure:"realtime"`
}

// RedisConfig definition redis setting
// Addr 為空時使用 .env 內的 sentinel 設定
type RedisConfig struct {
	RedisDB      int           `mapstructure:"redis_db"`
	Addr         string        `mapstructure:"addr"`
	Relay        bool          `mapstructure:"relay"`
	SessionCheck bool          `mapstructure:"session_check"`
	MemberTTL    time.Duration `mapstructure:"member_ttl"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition image bucket setting, empty endpoint disables upload
type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Bucket        string `mapstructure:"bucket"`
	PublicURL     string `mapstructure:"public_url"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// EventConfig definition activity stream setting
type EventConfig struct {
	// Driver is one of "none", "kafka", "rabbitmq"
	Driver        string   `mapstructure:"driver"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	URL           string   `mapstructure:"url"`
	Queue         string   `mapstructure:"queue"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// RealtimeConfig definition websocket setting
type RealtimeConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	EchoToSender bool          `mapstructure:"echo_to_sender"`
}

// Defaults fill zero values with the service defaults
func (c *Chat) Defaults() {
	if c.Port == "" {
		c.Port = "5000"
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = 4 * 1024 * 1024
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Redis.MemberTTL <= 0 {
		c.Redis.MemberTTL = 5 * time.Minute
	}
	if c.Realtime.PingInterval <= 0 {
		c.Realtime.PingInterval = 25 * time.Second
	}
	if c.Realtime.WriteWait <= 0 {
		c.Realtime.WriteWait = 10 * time.Second
	}
	if c.Realtime.SendBuffer <= 0 {
		c.Realtime.SendBuffer = 64
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
}

// AllowOrigins CORS origin list in the form the fiber cors middleware expects
func (c *Chat) AllowOrigins() string {
	if len(c.CORSOrigins) > 0 {
		return strings.Join(c.CORSOrigins, ",")
	}
	if IsProduction() {
		return strings.Join(productionOrigins, ",")
	}
	return "*"
}
