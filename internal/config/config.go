package config

import (
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Redis     Redis     `mapstructure:"redis"`
	Storage   Storage   `mapstructure:"storage"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Retry     Retry     `mapstructure:"retry"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Publisher Publisher `mapstructure:"publisher"`
	Fetch     Fetch     `mapstructure:"fetch"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string        `mapstructure:"http_port"` // HTTP port to listen on
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // Covers thumbnail streaming
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Redis holds connection parameters for the token bucket and stats store.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Storage holds configuration for the thumbnail storage backend.
type Storage struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Kafka holds configuration for the Kafka topics the worker reads and writes.
type Kafka struct {
	GroupID       string   `mapstructure:"group_id"`       // Consumer group ID
	Brokers       []string `mapstructure:"brokers"`        // List of Kafka broker addresses
	InboundTopic  string   `mapstructure:"inbound_topic"`  // Image tasks to crawl
	MetadataTopic string   `mapstructure:"metadata_topic"` // Quality and EXIF updates
	LinkRotTopic  string   `mapstructure:"link_rot_topic"` // Not-found notices
	RetryTopic    string   `mapstructure:"retry_topic"`    // Tasks to crawl again
	BufferSize    int      `mapstructure:"buffer_size"`    // Local send buffer, in messages
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Pipeline configures the image processing pipeline.
type Pipeline struct {
	MaxTasks        int `mapstructure:"max_tasks"`        // Concurrently executing tasks
	ScheduleSize    int `mapstructure:"schedule_size"`    // Accepted but unfinished tasks
	Workers         int `mapstructure:"workers"`          // CPU worker pool size, 0 = NumCPU
	ThumbnailWidth  int `mapstructure:"thumbnail_width"`  // Envelope width
	ThumbnailHeight int `mapstructure:"thumbnail_height"` // Envelope height
	JPEGQuality     int `mapstructure:"jpeg_quality"`     // Thumbnail quality factor
	MaxAttempts     int `mapstructure:"max_attempts"`     // Crawl attempts before giving up
}

// Publisher configures the batching event publishers.
type Publisher struct {
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	Backoff          time.Duration `mapstructure:"backoff"`
	RequeueExhausted bool          `mapstructure:"requeue_exhausted"`
}

// Fetch configures the rate-limited HTTP client.
type Fetch struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	TokenAttempts int           `mapstructure:"token_attempts"` // Token requests before giving up
	TokenWait     time.Duration `mapstructure:"token_wait"`     // Wait after an empty bucket
}

// RateLimit configures the token bucket regulator.
type RateLimit struct {
	Interval time.Duration      `mapstructure:"interval"`
	Rates    map[string]float64 `mapstructure:"rates"` // Requests per second by source
}

// setDefaults registers fallback values for every optional key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("storage.bucket_name", "thumbnails")
	v.SetDefault("kafka.group_id", "image_handlers")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.inbound_topic", "inbound_images")
	v.SetDefault("kafka.metadata_topic", "image_metadata_updates")
	v.SetDefault("kafka.link_rot_topic", "link_rot")
	v.SetDefault("kafka.retry_topic", "inbound_images")
	v.SetDefault("kafka.buffer_size", 100000)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", time.Second)
	v.SetDefault("retry.backoff", 2.0)
	v.SetDefault("pipeline.max_tasks", 1000)
	v.SetDefault("pipeline.schedule_size", 3000)
	v.SetDefault("pipeline.thumbnail_width", 640)
	v.SetDefault("pipeline.thumbnail_height", 480)
	v.SetDefault("pipeline.jpeg_quality", 30)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("publisher.flush_interval", time.Minute)
	v.SetDefault("publisher.max_attempts", 10)
	v.SetDefault("publisher.backoff", 5*time.Second)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "image-crawler/1.0")
	v.SetDefault("fetch.token_attempts", 5)
	v.SetDefault("fetch.token_wait", time.Second)
	v.SetDefault("rate_limit.interval", time.Second)
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"redis.addr":          "REDIS_ADDR",
		"redis.password":      "REDIS_PASSWORD",
		"kafka.brokers":       "KAFKA_BROKERS",
		"storage.endpoint":    "STORAGE_ENDPOINT",
		"storage.access_key":  "STORAGE_ACCESS_KEY",
		"storage.secret_key":  "STORAGE_SECRET_KEY",
		"storage.bucket_name": "STORAGE_BUCKET",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// Load reads the configuration from the YAML file at path, layering
// defaults and environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)
	mustBindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to load config %s", path)
	}

	return cfg
}
