package main

import (
	"fmt"
	"os"
	"time"

	"competenest/internal/common/cache"
	"competenest/internal/common/db"
	"competenest/internal/common/mq"
	"competenest/internal/common/storage"
	"competenest/internal/judge"
	"competenest/internal/submission/service"
	"competenest/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// SubmissionConfig holds evaluation settings.
type SubmissionConfig struct {
	TestcaseBucket  string                  `yaml:"testcaseBucket"`
	CallbackBaseURL string                  `yaml:"callbackBaseURL"`
	FinalEventTopic string                  `yaml:"finalEventTopic"`
	MaxCodeBytes    int                     `yaml:"maxCodeBytes"`
	PresignTTL      time.Duration           `yaml:"presignTTL"`
	DedupeTTL       time.Duration           `yaml:"dedupeTTL"`
	ProblemCacheTTL time.Duration           `yaml:"problemCacheTTL"`
	ProblemEmptyTTL time.Duration           `yaml:"problemEmptyTTL"`
	RateLimit       service.RateLimitConfig `yaml:"rateLimit"`
	Timeouts        service.TimeoutConfig   `yaml:"timeouts"`
}

// AppConfig holds submission-service configuration.
type AppConfig struct {
	Server     ServerConfig        `yaml:"server"`
	Logger     logger.Config       `yaml:"logger"`
	Database   db.MySQLConfig      `yaml:"database"`
	Redis      cache.RedisConfig   `yaml:"redis"`
	Kafka      mq.KafkaConfig      `yaml:"kafka"`
	MinIO      storage.MinIOConfig `yaml:"minio"`
	Judge      judge.Config        `yaml:"judge"`
	Submission SubmissionConfig    `yaml:"submission"`
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

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Judge.URL == "" {
		return nil, fmt.Errorf("judge url is required")
	}
	if cfg.Submission.CallbackBaseURL == "" {
		return nil, fmt.Errorf("callback base url is required")
	}

	if cfg.Submission.TestcaseBucket == "" {
		cfg.Submission.TestcaseBucket = cfg.MinIO.Bucket
	}
	if cfg.Submission.FinalEventTopic == "" {
		cfg.Submission.FinalEventTopic = "submission.final"
	}
	if cfg.Submission.MaxCodeBytes == 0 {
		cfg.Submission.MaxCodeBytes = 256 * 1024
	}
	if cfg.Submission.PresignTTL == 0 {
		cfg.Submission.PresignTTL = 15 * time.Minute
	}
	if cfg.Submission.DedupeTTL == 0 {
		cfg.Submission.DedupeTTL = 10 * time.Second
	}
	if cfg.Submission.ProblemCacheTTL == 0 {
		cfg.Submission.ProblemCacheTTL = 30 * time.Minute
	}
	if cfg.Submission.ProblemEmptyTTL == 0 {
		cfg.Submission.ProblemEmptyTTL = 5 * time.Minute
	}
	if cfg.Submission.RateLimit.Window == 0 {
		cfg.Submission.RateLimit.Window = time.Minute
	}
	if cfg.Submission.RateLimit.UserMax == 0 {
		cfg.Submission.RateLimit.UserMax = 30
	}
	if cfg.Submission.RateLimit.IPMax == 0 {
		cfg.Submission.RateLimit.IPMax = 60
	}
	if cfg.Submission.Timeouts.DB == 0 {
		cfg.Submission.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submission.Timeouts.Cache == 0 {
		cfg.Submission.Timeouts.Cache = 1 * time.Second
	}
	if cfg.Submission.Timeouts.MQ == 0 {
		cfg.Submission.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submission.Timeouts.Storage == 0 {
		cfg.Submission.Timeouts.Storage = 5 * time.Second
	}
	if cfg.Submission.Timeouts.Judge == 0 {
		cfg.Submission.Timeouts.Judge = 10 * time.Second
	}

	return &cfg, nil
}
