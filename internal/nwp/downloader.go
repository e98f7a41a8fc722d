package nwp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// defaultDownloadTimeout bounds a single download attempt.
const defaultDownloadTimeout = 30 * time.Second

// DefaultWorkers is the downloader's default concurrency cap.
const DefaultWorkers = 5

// Downloader executes a batch of tasks in a bounded worker pool. Failures
// are isolated per task; one exhausted task never aborts its siblings.
type Downloader struct {
	transport *Transport
	workers   int
	timeout   time.Duration
	log       zerolog.Logger
}

// NewDownloader builds a downloader with the given concurrency cap.
func NewDownloader(transport *Transport, workers int, log zerolog.Logger) *Downloader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Downloader{
		transport: transport,
		workers:   workers,
		timeout:   defaultDownloadTimeout,
		log:       log.With().Str("component", "downloader").Logger(),
	}
}

// Run executes every task and returns one result per task, in completion
// order. The first rate-limited task flips a batch-wide flag: remaining
// tasks fail fast without touching the network, so a throttling provider is
// left alone for the rest of the batch.
func (d *Downloader) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var rateLimited atomic.Bool
	var done atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				res := d.execute(ctx, task, &rateLimited)
				n := done.Add(1)

				if res.Err != nil {
					d.log.Warn().Err(res.Err).Str("dest", res.Task.Dest).
						Int64("completed", n).Int("total", len(tasks)).
						Msg("task failed")
				} else {
					d.log.Info().Str("dest", res.Task.Dest).
						Int64("completed", n).Int("total", len(tasks)).
						Msg("task finished")
				}

				resultCh <- res
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var results []Result
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

func (d *Downloader) execute(ctx context.Context, task Task, rateLimited *atomic.Bool) Result {
	start := time.Now()
	res := Result{Task: task}

	if rateLimited.Load() {
		res.Err = fmt.Errorf("batch paused: %w", ErrRateLimited)
		res.Duration = time.Since(start)
		return res
	}

	var body []byte
	var err error
	if task.Compressed {
		body, err = d.transport.FetchBzip2(ctx, task.URL, d.timeout)
	} else {
		body, err = d.transport.Fetch(ctx, task.URL, d.timeout)
	}
	if err != nil {
		if isRateLimited(err) {
			rateLimited.Store(true)
		}
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	if err := os.MkdirAll(filepath.Dir(task.Dest), 0o755); err != nil {
		res.Err = fmt.Errorf("creating destination directory: %w", err)
		res.Duration = time.Since(start)
		return res
	}
	if err := os.WriteFile(task.Dest, body, 0o644); err != nil {
		res.Err = fmt.Errorf("writing %s: %w", task.Dest, err)
		res.Duration = time.Since(start)
		return res
	}

	res.Bytes = int64(len(body))
	res.Duration = time.Since(start)
	return res
}
