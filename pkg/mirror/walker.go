// Package mirror drives the paginated traversal of a creator's remote
// catalog: it filters and orders items, feeds the persistence layer in
// batches, and hands download jobs to the worker pool without waiting for
// them.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"pixmirror/internal/downloader"
	errs "pixmirror/pkg/errors"
	"pixmirror/pkg/logger"
	"pixmirror/pkg/pixiv"
	"pixmirror/pkg/retry"
	"pixmirror/pkg/storage"
	"pixmirror/pkg/store"
)

// Options selects what to traverse and how.
type Options struct {
	Kind pixiv.Kind
	// CreatorID is the traversal target; 0 means the authenticated account.
	CreatorID uint64
	// MaxItems is a hard cap on accepted works; 0 means unlimited.
	MaxItems int
	// TypeFilter keeps only works of one type when set.
	TypeFilter pixiv.WorkType
	// Tag filter sets; exclude takes precedence over include.
	TagsInclude []string
	TagsExclude []string
	Policy      MatchPolicy
	// BatchSize is the number of upserted works per metadata commit.
	BatchSize int
	// PageRetries bounds retries of a single page fetch.
	PageRetries int
	// Language requested for tag translations.
	Language string
}

// Stats is the run report.
type Stats struct {
	PagesFetched   int
	ItemsProcessed int
	WorksCreated   int
	WorksUpdated   int
	ItemsSkipped   int
}

// detailSource is implemented by clients that can fetch a creator's full
// profile detail.
type detailSource interface {
	CreatorDetail(ctx context.Context, creatorID uint64) (*pixiv.CreatorInfo, error)
}

// Walker traverses one catalog. It is single-use: the metadata path runs
// sequentially on the caller's goroutine while downloads proceed in the
// pool.
type Walker struct {
	source pixiv.Source
	store  *store.Store
	pool   *downloader.Pool
	files  *storage.Manager
	opts   Options
	log    logger.Logger
}

// New creates a walker. BatchSize defaults to 30 and PageRetries to 3 when
// unset.
func New(source pixiv.Source, st *store.Store, pool *downloader.Pool, files *storage.Manager, opts Options, log logger.Logger) *Walker {
	if opts.BatchSize < 1 {
		opts.BatchSize = 30
	}
	if opts.PageRetries < 1 {
		opts.PageRetries = 3
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Walker{source: source, store: st, pool: pool, files: files, opts: opts, log: log}
}

// pendingWork buffers a work's download jobs until the batch that contains
// its metadata has committed, so a settled completion flag can never refer
// to an uncommitted row.
type pendingWork struct {
	workID uint64
	jobs   []downloader.Job
}

// Run pulls pages until the catalog is exhausted, the item cap is reached,
// or the context asks for a graceful stop. It returns the run report; on
// error, batches committed before the failure remain valid and the report
// covers them.
func (w *Walker) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	creatorID := w.opts.CreatorID
	if creatorID == 0 {
		creatorID = w.source.AccountID()
	}
	if creatorID == 0 {
		return stats, fmt.Errorf("no traversal target: creator id unset and source has no account")
	}

	w.log.InfoWithFields("starting traversal", map[string]interface{}{
		"kind":       string(w.opts.Kind),
		"creator_id": creatorID,
		"max_items":  w.opts.MaxItems,
	})

	// persistence sessions run on their own context: a stop signal must not
	// doom the batch being committed, only the loop and the fetches
	persistCtx := context.Background()
	sess, err := w.store.Begin(persistCtx, store.ReadWrite)
	if err != nil {
		return stats, err
	}
	// sess is replaced at every batch boundary; close whichever is current
	defer func() { _ = sess.Close() }()

	if ds, ok := w.source.(detailSource); ok {
		if info, err := ds.CreatorDetail(ctx, creatorID); err != nil {
			w.log.WithError(err).Warn("creator detail fetch failed, continuing without profile")
		} else if err := sess.UpsertCreator(*info); err != nil {
			return stats, err
		}
	}

	filter := newItemFilter(w.opts)
	cache := store.NewTagCache()
	var pending []pendingWork
	inBatch := 0
	accepted := 0
	token := ""

	for {
		if ctx.Err() != nil {
			w.log.Info("graceful stop requested, committing pending batch")
			break
		}

		page, err := w.fetchPage(ctx, creatorID, token)
		if err != nil {
			if ctx.Err() != nil {
				// the stop signal interrupted the fetch; the pending batch
				// still commits below
				w.log.Info("graceful stop requested, committing pending batch")
				break
			}
			_ = sess.Rollback()
			if isAuthErr(err) {
				return stats, fmt.Errorf("authentication failure: %w", err)
			}
			return stats, fmt.Errorf("page fetch failed after retries: %w", err)
		}
		stats.PagesFetched++

		kept := make([]pixiv.WorkItem, 0, len(page.Items))
		for _, item := range page.Items {
			// malformed entries are dropped here so they never consume an
			// item-cap slot
			if item.ID == 0 || item.Creator.ID == 0 {
				stats.ItemsSkipped++
				w.log.WarnWithFields("skipping malformed item", map[string]interface{}{
					"work_id": item.ID,
				})
				continue
			}
			if w.opts.MaxItems > 0 && accepted+len(kept) >= w.opts.MaxItems {
				break
			}
			if filter.accepts(item) {
				kept = append(kept, item)
			}
		}

		// the catalog is newest-first; applying each page in reverse makes
		// the insertion-order index follow true chronological order, while
		// pages themselves are processed in the order received
		for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
			kept[i], kept[j] = kept[j], kept[i]
		}

		for _, item := range kept {
			created, err := sess.UpsertWork(item, w.opts.Language, cache)
			if err != nil {
				_ = sess.Rollback()
				return stats, fmt.Errorf("persist work %d: %w", item.ID, err)
			}
			if created {
				stats.WorksCreated++
			} else {
				stats.WorksUpdated++
			}
			stats.ItemsProcessed++
			accepted++

			pending = append(pending, pendingWork{workID: item.ID, jobs: w.jobsFor(item)})
			inBatch++

			if inBatch >= w.opts.BatchSize {
				if err := sess.Commit(); err != nil {
					return stats, err
				}
				w.enqueue(pending)
				pending = pending[:0]
				inBatch = 0

				sess, err = w.store.Begin(persistCtx, store.ReadWrite)
				if err != nil {
					return stats, err
				}
			}
		}

		if w.opts.MaxItems > 0 && accepted >= w.opts.MaxItems {
			break
		}
		token = page.NextToken
		if token == "" {
			break
		}
	}

	if err := sess.Commit(); err != nil {
		return stats, err
	}
	w.enqueue(pending)

	w.log.InfoWithFields("traversal finished", map[string]interface{}{
		"pages":   stats.PagesFetched,
		"items":   stats.ItemsProcessed,
		"created": stats.WorksCreated,
		"updated": stats.WorksUpdated,
		"skipped": stats.ItemsSkipped,
	})
	return stats, nil
}

// fetchPage pulls one catalog page with bounded backoff.
func (w *Walker) fetchPage(ctx context.Context, creatorID uint64, token string) (*pixiv.Page, error) {
	var page *pixiv.Page
	err := retry.Do(func() error {
		var err error
		page, err = w.source.FetchPage(ctx, w.opts.Kind, creatorID, token)
		return err
	}, &retry.Config{
		MaxAttempts: w.opts.PageRetries,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      w.log,
	})
	return page, err
}

// jobsFor derives one download job per media URL referenced by an item.
func (w *Walker) jobsFor(item pixiv.WorkItem) []downloader.Job {
	var jobs []downloader.Job

	if item.PageCount > 1 && len(item.Pages) > 0 {
		for page, urls := range item.Pages {
			if urls.Original == "" {
				continue
			}
			jobs = append(jobs, downloader.Job{
				WorkID: item.ID,
				URL:    urls.Original,
				Path:   w.files.PagePath(item.Creator.ID, item.ID, page, urls.Original),
			})
		}
	} else if item.SinglePage != nil && item.SinglePage.Original != "" {
		jobs = append(jobs, downloader.Job{
			WorkID: item.ID,
			URL:    item.SinglePage.Original,
			Path:   w.files.PagePath(item.Creator.ID, item.ID, 0, item.SinglePage.Original),
		})
	}

	if item.Ugoira != nil && item.Ugoira.ZipURL != "" {
		jobs = append(jobs, downloader.Job{
			WorkID: item.ID,
			URL:    item.Ugoira.ZipURL,
			Path:   w.files.UgoiraPath(item.Creator.ID, item.ID),
		})
	}
	return jobs
}

// enqueue hands committed works' jobs to the pool. Enqueue never blocks on
// the downloads themselves; they may still be in flight when the walker
// finishes.
func (w *Walker) enqueue(pending []pendingWork) {
	for _, pw := range pending {
		if len(pw.jobs) == 0 {
			continue
		}
		if err := w.pool.SubmitWork(pw.workID, pw.jobs); err != nil {
			w.log.WithError(err).WithField("work_id", pw.workID).Warn("download pool refused jobs")
		}
	}
}

func isAuthErr(err error) bool {
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == errs.ErrorTypeAuth
	}
	return false
}
