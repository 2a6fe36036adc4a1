// Package downloader is the bounded-concurrency task queue for media files.
// Jobs are decoupled from the metadata commit path: the walker keeps
// ingesting while workers fetch, and a work's download-completion flag is
// settled only when every job derived from it has reached a terminal state.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"pixmirror/pkg/logger"
	"pixmirror/pkg/retry"
)

// Job identifies one media file to mirror: a source URL and a destination
// path, owned by a work.
type Job struct {
	WorkID uint64
	URL    string
	Path   string
}

// Fetcher opens a media file by URL. Satisfied by the remote source client.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Saver persists a media stream at a destination path.
type Saver interface {
	Exists(path string) bool
	Save(r io.Reader, path string) error
}

// Settlement is invoked exactly once per work, after the last of its jobs
// reaches a terminal state. complete is true only if every job succeeded.
type Settlement func(workID uint64, complete bool)

// Config tunes the pool.
type Config struct {
	// Workers is the fixed pool size
	Workers int
	// Attempts bounds per-job retries
	Attempts int
	// Backoff computes the delay between attempts
	Backoff retry.BackoffStrategy
}

// Stats counts terminal job outcomes.
type Stats struct {
	Succeeded int64
	Failed    int64
	Skipped   int64
}

type workState struct {
	remaining int
	failed    bool
}

// Pool is a fixed-size worker pool over an unbounded in-memory queue, so
// submission never blocks the metadata path.
type Pool struct {
	cfg      Config
	fetcher  Fetcher
	saver    Saver
	log      logger.Logger
	onSettle Settlement

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Job
	closed bool

	works map[uint64]*workState

	// outstanding is incremented at submission time, before a job is ever
	// visible to a worker, so Drain cannot observe a dequeued-but-untracked
	// job.
	outstanding sync.WaitGroup
	pending     atomic.Int64

	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	workerWG sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
}

// ErrPoolClosed is returned by Submit after Stop.
var ErrPoolClosed = errors.New("downloader: pool no longer accepts jobs")

// NewPool creates a download pool. onSettle may be nil.
func NewPool(cfg Config, fetcher Fetcher, saver Saver, log logger.Logger, onSettle Settlement) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = &retry.ExponentialBackoff{
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		}
	}
	if log == nil {
		log = logger.GetLogger()
	}

	p := &Pool{
		cfg:      cfg,
		fetcher:  fetcher,
		saver:    saver,
		log:      log,
		onSettle: onSettle,
		works:    make(map[uint64]*workState),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. ctx cancellation aborts in-flight downloads.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.InfoWithFields("starting download pool", map[string]interface{}{
		"workers": p.cfg.Workers,
	})
	for i := 0; i < p.cfg.Workers; i++ {
		p.workerWG.Add(1)
		go p.worker(i)
	}
}

// SubmitWork registers all of a work's jobs atomically and enqueues them.
// Registering the full set before any job runs makes the settlement count
// exact even when the first job finishes before the last is enqueued.
func (p *Pool) SubmitWork(workID uint64, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	ws := p.works[workID]
	if ws == nil {
		ws = &workState{}
		p.works[workID] = ws
	}
	ws.remaining += len(jobs)

	p.outstanding.Add(len(jobs))
	p.pending.Add(int64(len(jobs)))
	p.queue = append(p.queue, jobs...)
	p.mu.Unlock()

	p.cond.Broadcast()
	return nil
}

// Stop asks the pool to refuse new jobs, lets queued and in-flight jobs
// finish, and returns when all workers have exited.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	p.workerWG.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.log.Info("download pool stopped")
}

// Drain blocks until every submitted job has reached a terminal state. It
// wakes exactly when the outstanding count hits zero; no polling.
func (p *Pool) Drain() {
	p.outstanding.Wait()
}

// Outstanding returns the number of submitted jobs not yet terminal.
func (p *Pool) Outstanding() int64 {
	return p.pending.Load()
}

// Stats returns terminal job counts so far.
func (p *Pool) Stats() Stats {
	return Stats{
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Skipped:   p.skipped.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.workerWG.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// closed and drained
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		skipped, err := p.process(job, id)
		p.settle(job, skipped, err)
	}
}

// process downloads one file with bounded retry. A file already present is
// an immediate success so re-runs skip completed media.
func (p *Pool) process(job Job, workerID int) (skipped bool, err error) {
	if p.saver.Exists(job.Path) {
		p.log.DebugWithFields("media already present", map[string]interface{}{
			"worker_id": workerID,
			"work_id":   job.WorkID,
			"path":      job.Path,
		})
		return true, nil
	}

	return false, retry.Do(func() error {
		body, err := p.fetcher.Download(p.ctx, job.URL)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		defer body.Close()

		if err := p.saver.Save(body, job.Path); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		return nil
	}, &retry.Config{
		MaxAttempts: p.cfg.Attempts,
		Backoff:     p.cfg.Backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     p.ctx,
		Logger:      p.log,
	})
}

// settle records a terminal outcome and fires the per-work settlement when
// the last of the work's jobs finishes.
func (p *Pool) settle(job Job, skipped bool, err error) {
	switch {
	case err != nil:
		p.failed.Add(1)
		p.log.ErrorWithFields("download permanently failed", map[string]interface{}{
			"work_id": job.WorkID,
			"url":     job.URL,
			"error":   err.Error(),
		})
	case skipped:
		p.skipped.Add(1)
	default:
		p.succeeded.Add(1)
	}

	var fire bool
	var complete bool

	p.mu.Lock()
	ws := p.works[job.WorkID]
	if ws != nil {
		if err != nil {
			ws.failed = true
		}
		ws.remaining--
		if ws.remaining == 0 {
			fire = true
			complete = !ws.failed
			delete(p.works, job.WorkID)
		}
	}
	p.mu.Unlock()

	if fire && p.onSettle != nil {
		p.onSettle(job.WorkID, complete)
	}

	p.pending.Add(-1)
	p.outstanding.Done()
}
