package ingest

import (
	"time"

	"github.com/yungbote/inboxpilot-backend/internal/platform/envutil"
)

type Config struct {
	// MaxConcurrency caps in-flight messages and is also the batch size.
	MaxConcurrency int
	// BatchTimeout is a soft deadline per batch; unfinished messages in an
	// expired batch are abandoned and the next batch starts.
	BatchTimeout time.Duration
	// SpamBatch is how many leading messages of a batch run are processed;
	// 0 means all of them.
	SpamBatch int
	// TaskConcurrency caps feature extraction calls within one message.
	TaskConcurrency int
}

func ConfigFromEnv() Config {
	return Config{
		MaxConcurrency:  envutil.Int("PIPELINE_MAX_CONCURRENCY", 10),
		BatchTimeout:    envutil.Seconds("PIPELINE_BATCH_TIMEOUT_SECONDS", 60),
		SpamBatch:       envutil.Int("ONBOARDING_SPAM_BATCH", 20),
		TaskConcurrency: envutil.Int("PIPELINE_TASK_CONCURRENCY", 3),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 10
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 60 * time.Second
	}
	if c.SpamBatch < 0 {
		c.SpamBatch = 0
	}
	if c.TaskConcurrency <= 0 {
		c.TaskConcurrency = 3
	}
	return c
}
