package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/common/mq"
	"contestjudge/internal/common/storage"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultTestCaseTTL     = 10 * time.Minute
	defaultEventMaxLen     = 10000

	queueDriverKafka = "kafka"
	queueDriverRedis = "redis"

	roleAPI       = "api"
	roleWorker    = "worker"
	roleFailure   = "failure"
	roleScheduler = "scheduler"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
}

// RedisQueueConfig holds Redis list driver settings. The driver shares the
// cache's connection pool.
type RedisQueueConfig struct {
	KeyPrefix   string        `yaml:"keyPrefix"`
	Consumer    string        `yaml:"consumer"`
	PollTimeout time.Duration `yaml:"pollTimeout"`
	// EventMaxLen caps the event list, which nothing in this service reads.
	EventMaxLen int64 `yaml:"eventMaxLen"`
}

// QueueConfig selects the broker and names the topics.
type QueueConfig struct {
	Driver          string           `yaml:"driver"`
	Kafka           KafkaConfig      `yaml:"kafka"`
	Redis           RedisQueueConfig `yaml:"redis"`
	SubmissionTopic string           `yaml:"submissionTopic"`
	FailureTopic    string           `yaml:"failureTopic"`
	EventTopic      string           `yaml:"eventTopic"`
	ConsumerGroup   string           `yaml:"consumerGroup"`
}

// JudgeConfig holds worker settings.
type JudgeConfig struct {
	WorkRoot           string        `yaml:"workRoot"`
	TeardownTimeout    time.Duration `yaml:"teardownTimeout"`
	AttachmentBucket   string        `yaml:"attachmentBucket"`
	MaxAttachmentBytes int64         `yaml:"maxAttachmentBytes"`
	ExecutionBucket    string        `yaml:"executionBucket"`
	CacheTestCases     bool          `yaml:"cacheTestCases"`
	TestCaseTTL        time.Duration `yaml:"testCaseTTL"`
	FailureRetries     uint64        `yaml:"failureRetries"`
	FailureBackoff     time.Duration `yaml:"failureBackoff"`
}

// LeaderboardConfig holds freeze settings.
type LeaderboardConfig struct {
	FreezeInterval time.Duration `yaml:"freezeInterval"`
	LockTTL        time.Duration `yaml:"lockTTL"`
	LockWait       time.Duration `yaml:"lockWait"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	// Roles picks what this process runs. Empty means all of them.
	Roles       []string             `yaml:"roles"`
	Server      ServerConfig         `yaml:"server"`
	Logger      logger.Config        `yaml:"logger"`
	Queue       QueueConfig          `yaml:"queue"`
	Database    db.MySQLConfig       `yaml:"database"`
	Redis       cache.RedisConfig    `yaml:"redis"`
	MinIO       storage.MinIOConfig  `yaml:"minio"`
	Judge       JudgeConfig          `yaml:"judge"`
	Sandbox     sandbox.DockerConfig `yaml:"sandbox"`
	Languages   []profile.Profile    `yaml:"languages"`
	Leaderboard LeaderboardConfig    `yaml:"leaderboard"`
}

func (c *AppConfig) hasRole(role string) bool {
	if len(c.Roles) == 0 {
		return true
	}
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	for _, role := range cfg.Roles {
		switch strings.ToLower(role) {
		case roleAPI, roleWorker, roleFailure, roleScheduler:
		default:
			return nil, fmt.Errorf("unknown role %q", role)
		}
	}
	applyRedisDefaults(&cfg.Redis)
	if err := applyQueueDefaults(&cfg.Queue); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.AttachmentBucket == "" {
		cfg.Judge.AttachmentBucket = cfg.MinIO.Bucket
	}
	if cfg.Judge.ExecutionBucket == "" {
		cfg.Judge.ExecutionBucket = cfg.Judge.AttachmentBucket
	}
	if cfg.Judge.AttachmentBucket == "" {
		return nil, fmt.Errorf("attachment bucket is required")
	}
	if cfg.Judge.TestCaseTTL == 0 {
		cfg.Judge.TestCaseTTL = defaultTestCaseTTL
	}
	return &cfg, nil
}

func applyQueueDefaults(cfg *QueueConfig) error {
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch cfg.Driver {
	case "":
		cfg.Driver = queueDriverKafka
	case queueDriverKafka, queueDriverRedis:
	default:
		return fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
	if cfg.Driver == queueDriverKafka && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if cfg.SubmissionTopic == "" {
		cfg.SubmissionTopic = "judge.submission"
	}
	if cfg.FailureTopic == "" {
		cfg.FailureTopic = "judge.failure"
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = "judge.events"
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "contestjudge"
	}
	if cfg.Redis.EventMaxLen == 0 {
		cfg.Redis.EventMaxLen = defaultEventMaxLen
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
