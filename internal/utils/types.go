package utils

import (
	"context"
	"time"
)

type Downloader interface {
	ValidateJob(job *SurgeJob) error
	BuildJob(ctx context.Context, job *SurgeJob) error
	Download(ctx context.Context, job *SurgeJob) error
}

type SurgeJob struct {
	ID               string
	JobType          string
	URL              string
	OutputPath       string
	OpenMode         string
	Connections      int
	SplitSize        int64
	ProgressFunc     func(downloaded, total int64)
	Retry            RetryConfig
	RequestRate      float64
	Metadata         map[string]any
	HTTPClientConfig HTTPClientConfig
}

type RetryConfig struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}
