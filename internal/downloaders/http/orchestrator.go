package surgehttp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/surge/internal/plan"
	"github.com/tanq16/surge/internal/utils"
)

// SegmentFetcher returns exactly the bytes of seg or an error.
type SegmentFetcher interface {
	Fetch(ctx context.Context, link string, seg plan.Segment) ([]byte, error)
}

// Sink receives the reassembled stream. Writes append in call order.
type Sink interface {
	Write(p []byte) (int, error)
	Flush() error
}

type SegmentEvent struct {
	Segment  plan.Segment
	Bytes    int64
	Duration time.Duration // measured from this segment's own start
}

// Observer is notified as segments arrive and batches land on the sink.
// SegmentFetched is called from fetch goroutines and must be safe for
// concurrent use.
type Observer interface {
	SegmentFetched(ev SegmentEvent)
	BatchWritten(b plan.Batch, elapsed time.Duration)
}

type RunOptions struct {
	SplitSize   int64
	Connections int
	Observer    Observer
}

// Run downloads res batch by batch. Each batch is fanned out to at most
// opts.Connections concurrent fetches, joined, then written to sink in
// segment order and flushed before the next batch starts. The first failing
// segment cancels its siblings and fails the run; batches already flushed
// stay on the sink.
func Run(ctx context.Context, res *Resource, opts RunOptions, fetcher SegmentFetcher, sink Sink) error {
	if opts.SplitSize <= 0 {
		return fmt.Errorf("split size must be positive, got %d", opts.SplitSize)
	}
	if opts.Connections <= 0 {
		return fmt.Errorf("connections must be positive, got %d", opts.Connections)
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	var written int64
	for batch := range plan.PlanBatches(res.Size, opts.SplitSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := runBatch(ctx, res.URL, batch, opts.Connections, fetcher, sink, obs)
		written += n
		if err != nil {
			return fmt.Errorf("batch %d [%d-%d]: %w", batch.Index, batch.Start, batch.End(), err)
		}
	}
	if written != res.Size {
		return &utils.IOError{Op: "verify", Path: res.URL, Err: fmt.Errorf("wrote %d bytes, expected %d", written, res.Size)}
	}
	return nil
}

func runBatch(ctx context.Context, link string, batch plan.Batch, connections int, fetcher SegmentFetcher, sink Sink, obs Observer) (int64, error) {
	start := time.Now()
	segments := plan.PlanSegments(batch, connections)
	results := make([][]byte, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(connections)
	for i, seg := range segments {
		g.Go(func() error {
			segStart := time.Now()
			data, err := fetcher.Fetch(gctx, link, seg)
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg.Index, err)
			}
			if int64(len(data)) != seg.Size() {
				return fmt.Errorf("segment %d: %w", seg.Index, &utils.TransportError{
					Op: "fetch", URL: link, Range: seg.RangeHeader(),
					Err: fmt.Errorf("%w: got %d of %d bytes", utils.ErrShortRead, len(data), seg.Size()),
				})
			}
			results[i] = data
			obs.SegmentFetched(SegmentEvent{Segment: seg, Bytes: int64(len(data)), Duration: time.Since(segStart)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var written int64
	for i := range results {
		n, err := sink.Write(results[i])
		written += int64(n)
		results[i] = nil
		if err != nil {
			return written, asIOError(err)
		}
	}
	if err := sink.Flush(); err != nil {
		return written, asIOError(err)
	}
	obs.BatchWritten(batch, time.Since(start))
	return written, nil
}

func asIOError(err error) error {
	var ioErr *utils.IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &utils.IOError{Op: "write", Path: "sink", Err: err}
}

type nopObserver struct{}

func (nopObserver) SegmentFetched(SegmentEvent)            {}
func (nopObserver) BatchWritten(plan.Batch, time.Duration) {}

// LogObserver reports per-segment and per-batch throughput to the global logger.
type LogObserver struct {
	Batches int
}

func (o LogObserver) SegmentFetched(ev SegmentEvent) {
	log.Info().Str("op", "http/orchestrator").
		Int("batch", ev.Segment.Batch).
		Int("segment", ev.Segment.Index).
		Msgf("Segment downloaded in %.2fs, speed %s", ev.Duration.Seconds(), utils.FormatSpeed(ev.Bytes, ev.Duration))
}

func (o LogObserver) BatchWritten(b plan.Batch, elapsed time.Duration) {
	log.Info().Str("op", "http/orchestrator").
		Int64("offset", b.Start).
		Int64("bytes", b.Size).
		Msgf("Batch %d/%d written in %.2fs", b.Index+1, o.Batches, elapsed.Seconds())
}
