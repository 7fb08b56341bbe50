package scheduler

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	surgehttp "github.com/tanq16/surge/internal/downloaders/http"
	"github.com/tanq16/surge/internal/output"
	"github.com/tanq16/surge/internal/utils"
)

// downloaderRegistry maps job types to their downloader implementations
var downloaderRegistry = map[string]utils.Downloader{
	"http": &surgehttp.HTTPDownloader{},
}

// Options controls how a job is presented while it runs.
type Options struct {
	// Display draws a live progress view on Out. Callers should point the
	// logger elsewhere while it is active.
	Display bool
	Out     io.Writer
}

// Run drives job through validation, probing and download. The first stage
// to fail ends the run and its error is returned unchanged.
func Run(ctx context.Context, job utils.SurgeJob, opts Options) error {
	logger := utils.GetLogger("scheduler").With().Str("job", job.ID).Logger()

	var outputMgr *output.Manager
	if opts.Display {
		outputMgr = output.NewManager(opts.Out)
		outputMgr.StartDisplay()
		defer outputMgr.StopDisplay()
	}
	s := &stage{mgr: outputMgr, logger: logger}
	s.id = s.register(job.URL)

	downloader, exists := downloaderRegistry[job.JobType]
	if !exists {
		err := fmt.Errorf("unknown job type: %s", job.JobType)
		s.fail("Unknown job type", err)
		return err
	}

	s.message(fmt.Sprintf("Validating %s job", job.JobType))
	if err := downloader.ValidateJob(&job); err != nil {
		s.fail("Validation failed", err)
		return err
	}

	s.message(fmt.Sprintf("Probing %s", job.URL))
	if err := downloader.BuildJob(ctx, &job); err != nil {
		s.fail("Probe failed", err)
		return err
	}

	s.message(fmt.Sprintf("Downloading %s", filepath.Base(job.OutputPath)))
	s.status("active")
	userProgress := job.ProgressFunc
	job.ProgressFunc = func(done, total int64) {
		if outputMgr != nil {
			outputMgr.ReportProgress(s.id, done, total)
		}
		if userProgress != nil {
			userProgress(done, total)
		}
	}
	if err := downloader.Download(ctx, &job); err != nil {
		s.fail(fmt.Sprintf("Download failed for %s", job.OutputPath), err)
		return err
	}

	size, _ := job.Metadata["fileSize"].(int64)
	logger.Info().Str("op", "scheduler/scheduler").Str("output", job.OutputPath).Int64("bytes", size).Msg("Job complete")
	if outputMgr != nil {
		outputMgr.Complete(s.id, fmt.Sprintf("Downloaded %s", job.OutputPath))
	}
	return nil
}

// stage reports the current step to the display when one is active and
// to the log otherwise.
type stage struct {
	mgr    *output.Manager
	logger zerolog.Logger
	id     int
}

func (s *stage) register(label string) int {
	if s.mgr == nil {
		return 0
	}
	return s.mgr.Register(label)
}

func (s *stage) message(msg string) {
	s.logger.Debug().Str("op", "scheduler/scheduler").Msg(msg)
	if s.mgr != nil {
		s.mgr.SetMessage(s.id, msg)
	}
}

func (s *stage) status(status string) {
	if s.mgr != nil {
		s.mgr.SetStatus(s.id, status)
	}
}

func (s *stage) fail(msg string, err error) {
	s.logger.Error().Str("op", "scheduler/scheduler").Err(err).Msg(msg)
	if s.mgr != nil {
		s.mgr.SetMessage(s.id, msg)
		s.mgr.ReportError(s.id, err)
	}
}
