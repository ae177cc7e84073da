package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/860844175/review-system/pkg/retry"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"5001"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// APIKey protects the front door. Empty disables the check.
	APIKey string `envconfig:"API_KEY"`
	// LocalBaseURL is the origin reviewers open review pages on.
	LocalBaseURL string `envconfig:"LOCAL_BASE_URL" default:"http://localhost:5001"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:"data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"review-system/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-east-1"`
}

type PlatformEnv struct {
	BaseURL    string        `envconfig:"PLATFORM_BASE_URL" default:"http://localhost:5003"`
	APIKey     string        `envconfig:"PLATFORM_API_KEY" default:"test_key"`
	TaskKind   string        `envconfig:"PLATFORM_TASK_KIND" default:"分诊评估"`
	Timeout    time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"30s"`
	MaxRetries int           `envconfig:"PLATFORM_MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `envconfig:"PLATFORM_RETRY_DELAY" default:"5s"`
}

func (e *PlatformEnv) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: e.MaxRetries, BaseDelay: e.RetryDelay}
}

type SourceSystemEnv struct {
	BaseURL       string        `envconfig:"SOURCE_BASE_URL" default:"http://localhost:5002"`
	APIKey        string        `envconfig:"SOURCE_API_KEY"`
	Timeout       time.Duration `envconfig:"SOURCE_TIMEOUT" default:"30s"`
	LookupTimeout time.Duration `envconfig:"SOURCE_LOOKUP_TIMEOUT" default:"20s"`
	MaxRetries    int           `envconfig:"SOURCE_MAX_RETRIES" default:"3"`
	RetryDelay    time.Duration `envconfig:"SOURCE_RETRY_DELAY" default:"5s"`
}

func (e *SourceSystemEnv) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: e.MaxRetries, BaseDelay: e.RetryDelay}
}

const (
	ReviewerSourcePlatform = "platform"
	ReviewerSourceFixture  = "fixture"
)

type AssignmentEnv struct {
	Strategy        string `envconfig:"ASSIGNMENT_STRATEGY" default:"load_balance"`
	ReviewerSource  string `envconfig:"REVIEWER_SOURCE" default:"platform"`
	ReviewerFixture string `envconfig:"REVIEWER_FIXTURE" default:"data/test_doctors.json"`
}

type Env struct {
	BaseEnv
	StorageEnv
	PlatformEnv
	SourceSystemEnv
	AssignmentEnv
}

const namespace = "REVIEW"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("invalid env: %w", err)
	}
	return &env, nil
}

func (e *Env) validate() error {
	var errs []error
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			errs = append(errs, errors.New("REVIEW_S3_BUCKET is required when REVIEW_STORAGE_TYPE=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", e.StorageEnv.Type))
	}
	switch e.ReviewerSource {
	case ReviewerSourcePlatform, ReviewerSourceFixture:
	default:
		errs = append(errs, fmt.Errorf("unknown reviewer source %q", e.ReviewerSource))
	}
	if e.PlatformEnv.MaxRetries < 1 || e.SourceSystemEnv.MaxRetries < 1 {
		errs = append(errs, errors.New("max retries must be at least 1"))
	}
	return errors.Join(errs...)
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (e *BaseEnv) IsLocal() bool {
	return e.Env == "local"
}
