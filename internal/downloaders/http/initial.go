package surgehttp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/surge/internal/plan"
	"github.com/tanq16/surge/internal/sink"
	"github.com/tanq16/surge/internal/utils"
)

type HTTPDownloader struct{}

func (d *HTTPDownloader) ValidateJob(job *utils.SurgeJob) error {
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", utils.ErrInvalidJob, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", utils.ErrInvalidJob, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%w: URL has no host: %s", utils.ErrInvalidJob, job.URL)
	}
	if job.Connections <= 0 {
		return fmt.Errorf("%w: connections must be positive, got %d", utils.ErrInvalidJob, job.Connections)
	}
	if job.SplitSize <= 0 {
		return fmt.Errorf("%w: split size must be positive, got %d", utils.ErrInvalidJob, job.SplitSize)
	}
	if _, err := sink.ParseOpenMode(job.OpenMode); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrInvalidJob, err)
	}
	return nil
}

func (d *HTTPDownloader) BuildJob(ctx context.Context, job *utils.SurgeJob) error {
	job.HTTPClientConfig.HighThreadMode = job.Connections > 5
	client := utils.NewHTTPClient(job.HTTPClientConfig)

	res, err := Probe(ctx, client, job.URL, job.Retry)
	if err != nil {
		return err
	}
	if job.OutputPath == "" {
		job.OutputPath = utils.OutputNameFromURL(res.URL)
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	job.Metadata["client"] = client
	job.Metadata["resource"] = res
	job.Metadata["fileSize"] = res.Size
	job.Metadata["batches"] = plan.CountBatches(res.Size, job.SplitSize)
	log.Debug().Str("op", "http/initial").Str("output", job.OutputPath).
		Int("batches", plan.CountBatches(res.Size, job.SplitSize)).Msg("Job built")
	return nil
}

func (d *HTTPDownloader) Download(ctx context.Context, job *utils.SurgeJob) error {
	res, ok := job.Metadata["resource"].(*Resource)
	if !ok {
		return errors.New("job was not built: missing resource descriptor")
	}
	client, ok := job.Metadata["client"].(*utils.HTTPClient)
	if !ok {
		return errors.New("job was not built: missing HTTP client")
	}
	mode, err := sink.ParseOpenMode(job.OpenMode)
	if err != nil {
		return err
	}
	out, err := sink.Open(job.OutputPath, mode)
	if err != nil {
		return err
	}
	job.OutputPath = out.Path()

	progressCh := make(chan int64, 100)
	progressDone := make(chan struct{})
	startTime := time.Now()

	go func() {
		defer close(progressDone)
		var totalDownloaded, lastReported int64
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case delta, ok := <-progressCh:
				if !ok {
					if job.ProgressFunc != nil {
						job.ProgressFunc(totalDownloaded, res.Size)
					}
					return
				}
				totalDownloaded += delta
			case <-ticker.C:
				if totalDownloaded != lastReported && job.ProgressFunc != nil {
					job.ProgressFunc(totalDownloaded, res.Size)
				}
				lastReported = totalDownloaded
			}
		}
	}()

	fetcher := NewFetcher(client, FetcherOptions{
		Retry:        job.Retry,
		RequestRate:  job.RequestRate,
		IfRange:      res.IfRangeValidator(),
		Size:         res.Size,
		StallTimeout: client.Timeout(),
		Progress:     func(delta int64) { progressCh <- delta },
	})
	runErr := Run(ctx, res, RunOptions{
		SplitSize:   job.SplitSize,
		Connections: job.Connections,
		Observer:    LogObserver{Batches: plan.CountBatches(res.Size, job.SplitSize)},
	}, fetcher, out)

	close(progressCh)
	<-progressDone
	closeErr := out.Close()

	elapsed := time.Since(startTime)
	job.Metadata["totalTime"] = elapsed.Seconds()
	job.Metadata["written"] = out.Written()

	if runErr != nil {
		log.Warn().Str("op", "http/initial").Str("output", job.OutputPath).
			Msgf("Output left incomplete with %d of %d bytes", out.Written(), res.Size)
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}
	log.Info().Str("op", "http/initial").Str("output", job.OutputPath).
		Msgf("Finished downloading %d bytes in %.2fs (%s)", res.Size, elapsed.Seconds(), utils.FormatSpeed(res.Size, elapsed))
	return nil
}
