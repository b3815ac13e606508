package service

import (
	"context"
	"fmt"
	"time"

	"competenest/internal/common/cache"
	"competenest/internal/common/db"
	"competenest/internal/common/mq"
	"competenest/internal/common/storage"
	"competenest/internal/judge"
	"competenest/internal/submission/repository"
)

// ProgressPublisher pushes evaluation progress to subscribers of a topic.
// Delivery is best effort: a missed snapshot is recovered by the next
// one, since every event carries full counts.
type ProgressPublisher interface {
	Publish(topic string, event interface{})
}

// JudgeClient is the slice of the judge API the service uses. Dispatch
// enqueues whole submissions with SubmitBatch; scratch runs enqueue a
// single job with Submit.
type JudgeClient interface {
	SubmitBatch(ctx context.Context, jobs []judge.Job) ([]judge.Token, error)
	Submit(ctx context.Context, job judge.Job) (judge.Token, error)
}

// RateLimitConfig holds dispatch throttling configuration.
type RateLimitConfig struct {
	UserMax int
	IPMax   int
	Window  time.Duration
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration
	Cache   time.Duration
	MQ      time.Duration
	Storage time.Duration
	Judge   time.Duration
}

// Config holds submission service dependencies and settings.
type Config struct {
	DB                db.Provider
	SubmissionRepo    repository.SubmissionRepository
	TestcaseRepo      repository.SubmittedTestcaseRepository
	ProblemRepo       repository.ProblemRepository
	Storage           storage.ObjectStorage
	MQ                mq.MessageQueue
	Cache             cache.Cache
	Judge             JudgeClient
	Notifier          ProgressPublisher
	Guard             *InflightGuard

	TestcaseBucket  string
	CallbackBaseURL string
	FinalEventTopic string
	MaxCodeBytes    int
	PresignTTL      time.Duration
	DedupeTTL       time.Duration
	RateLimit       RateLimitConfig
	Timeouts        TimeoutConfig
}

// SubmissionService evaluates code submissions: it fans testcases out to
// the judge, ingests the judge's per-testcase callbacks and aggregates
// them into a submission verdict.
type SubmissionService struct {
	db             db.Provider
	submissionRepo repository.SubmissionRepository
	testcaseRepo   repository.SubmittedTestcaseRepository
	problemRepo    repository.ProblemRepository
	storage        storage.ObjectStorage
	mq             mq.MessageQueue
	cache          cache.Cache
	judge          JudgeClient
	notifier       ProgressPublisher
	guard          *InflightGuard

	testcaseBucket  string
	callbackBaseURL string
	finalEventTopic string
	maxCodeBytes    int
	presignTTL      time.Duration
	dedupeTTL       time.Duration
	rateLimit       RateLimitConfig
	timeouts        TimeoutConfig
}

// NewSubmissionService creates a new submission service.
func NewSubmissionService(cfg Config) (*SubmissionService, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database provider is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.TestcaseRepo == nil {
		return nil, fmt.Errorf("submitted testcase repository is required")
	}
	if cfg.ProblemRepo == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if cfg.TestcaseBucket == "" {
		return nil, fmt.Errorf("testcase bucket is required")
	}
	if cfg.CallbackBaseURL == "" {
		return nil, fmt.Errorf("callback base URL is required")
	}
	if cfg.Guard == nil {
		cfg.Guard = NewInflightGuard()
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 10 * time.Second
	}
	return &SubmissionService{
		db:              cfg.DB,
		submissionRepo:  cfg.SubmissionRepo,
		testcaseRepo:    cfg.TestcaseRepo,
		problemRepo:     cfg.ProblemRepo,
		storage:         cfg.Storage,
		mq:              cfg.MQ,
		cache:           cfg.Cache,
		judge:           cfg.Judge,
		notifier:        cfg.Notifier,
		guard:           cfg.Guard,
		testcaseBucket:  cfg.TestcaseBucket,
		callbackBaseURL: cfg.CallbackBaseURL,
		finalEventTopic: cfg.FinalEventTopic,
		maxCodeBytes:    cfg.MaxCodeBytes,
		presignTTL:      cfg.PresignTTL,
		dedupeTTL:       cfg.DedupeTTL,
		rateLimit:       cfg.RateLimit,
		timeouts:        cfg.Timeouts,
	}, nil
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
