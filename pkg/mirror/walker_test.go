package mirror

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixmirror/internal/downloader"
	errs "pixmirror/pkg/errors"
	"pixmirror/pkg/pixiv"
	"pixmirror/pkg/retry"
	"pixmirror/pkg/storage"
	"pixmirror/pkg/store"
)

// fakeSource serves canned pages. Page i is returned for token "p<i>", the
// empty token maps to page 0.
type fakeSource struct {
	mu         sync.Mutex
	pages      []pixiv.Page
	fetchCalls int
	failPage   int
	failWith   error
	// cancel, when set, is invoked while "fetching" cancelPage to simulate
	// an interrupt arriving mid-request
	cancelPage int
	cancel     context.CancelFunc
}

func (f *fakeSource) FetchPage(ctx context.Context, kind pixiv.Kind, creatorID uint64, token string) (*pixiv.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++

	idx := 0
	if token != "" {
		fmt.Sscanf(token, "p%d", &idx)
	}
	if f.cancel != nil && idx == f.cancelPage {
		f.cancel()
		return nil, ctx.Err()
	}
	if f.failWith != nil && idx == f.failPage {
		return nil, f.failWith
	}
	if idx >= len(f.pages) {
		return &pixiv.Page{}, nil
	}

	page := f.pages[idx]
	if idx+1 < len(f.pages) {
		page.NextToken = fmt.Sprintf("p%d", idx+1)
	}
	return &page, nil
}

func (f *fakeSource) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("media")), nil
}

func (f *fakeSource) AccountID() uint64 { return 42 }

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func catalogItem(id uint64, tags ...string) pixiv.WorkItem {
	item := pixiv.WorkItem{
		ID:             id,
		Creator:        pixiv.CreatorInfo{ID: 42, Name: "creator"},
		Type:           pixiv.WorkTypeIllust,
		Title:          fmt.Sprintf("work %d", id),
		PageCount:      1,
		TotalViews:     100,
		TotalBookmarks: 10,
		CreatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SinglePage: &pixiv.ImageURLs{
			Original: fmt.Sprintf("https://img.example/%d.png", id),
		},
	}
	for _, tag := range tags {
		item.Tags = append(item.Tags, pixiv.TagInfo{Name: tag})
	}
	return item
}

type walkerFixture struct {
	source *fakeSource
	store  *store.Store
	pool   *downloader.Pool
}

func newWalkerFixture(t *testing.T, source *fakeSource) *walkerFixture {
	t.Helper()

	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	files, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	pool := downloader.NewPool(downloader.Config{
		Workers:  2,
		Attempts: 1,
		Backoff:  &retry.ConstantBackoff{Delay: time.Millisecond},
	}, source, files, nil, func(workID uint64, complete bool) {
		_ = st.SetDownloaded(context.Background(), workID, complete)
	})
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	return &walkerFixture{source: source, store: st, pool: pool}
}

func (fx *walkerFixture) run(t *testing.T, opts Options) (*Stats, error) {
	t.Helper()
	files, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	w := New(fx.source, fx.store, fx.pool, files, opts, nil)
	return w.Run(context.Background())
}

func (fx *walkerFixture) insertionOrder(t *testing.T) []uint64 {
	t.Helper()
	sess, err := fx.store.Begin(context.Background(), store.ReadOnly)
	require.NoError(t, err)
	defer sess.Close()
	order, err := sess.InsertionOrder()
	require.NoError(t, err)
	return order
}

func TestWalkerMirrorsCatalogInChronologicalOrder(t *testing.T) {
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{catalogItem(30), catalogItem(20), catalogItem(10)}},
		{Items: []pixiv.WorkItem{catalogItem(9), catalogItem(8)}},
	}}
	fx := newWalkerFixture(t, source)

	stats, err := fx.run(t, Options{Kind: pixiv.KindBookmarks})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.PagesFetched)
	assert.Equal(t, 5, stats.WorksCreated)
	assert.Equal(t, 0, stats.WorksUpdated)

	// pages arrive newest-first and are applied in reverse within each page
	assert.Equal(t, []uint64{10, 20, 30, 8, 9}, fx.insertionOrder(t))

	// downloads settle and flip the completion flag
	fx.pool.Drain()
	sess, err := fx.store.Begin(context.Background(), store.ReadOnly)
	require.NoError(t, err)
	defer sess.Close()
	w, err := sess.GetWork(10)
	require.NoError(t, err)
	assert.True(t, w.IsDownloaded)
}

func TestWalkerSecondRunUpdatesInPlace(t *testing.T) {
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{catalogItem(2), catalogItem(1)}},
	}}
	fx := newWalkerFixture(t, source)

	_, err := fx.run(t, Options{Kind: pixiv.KindBookmarks})
	require.NoError(t, err)

	stats, err := fx.run(t, Options{Kind: pixiv.KindBookmarks})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.WorksCreated)
	assert.Equal(t, 2, stats.WorksUpdated)

	// positions assigned on first sight survive the second run
	assert.Equal(t, []uint64{1, 2}, fx.insertionOrder(t))
}

func TestWalkerMaxItemsStopsFetching(t *testing.T) {
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{catalogItem(3), catalogItem(2)}},
		{Items: []pixiv.WorkItem{catalogItem(1)}},
	}}
	fx := newWalkerFixture(t, source)

	stats, err := fx.run(t, Options{Kind: pixiv.KindBookmarks, MaxItems: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ItemsProcessed)
	assert.Equal(t, 1, source.calls(), "no further page fetch once the cap is reached")
}

func TestWalkerTagFilterExcludeWins(t *testing.T) {
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{
			catalogItem(1, "cat"),
			catalogItem(2, "cat", "nsfw"),
			catalogItem(3, "dog"),
		}},
	}}
	fx := newWalkerFixture(t, source)

	stats, err := fx.run(t, Options{
		Kind:        pixiv.KindBookmarks,
		TagsInclude: []string{"cat", "dog"},
		TagsExclude: []string{"nsfw"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ItemsProcessed)
	assert.ElementsMatch(t, []uint64{1, 3}, fx.insertionOrder(t))
}

func TestWalkerMatchAllPolicy(t *testing.T) {
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{
			catalogItem(1, "cat", "sketch"),
			catalogItem(2, "cat"),
		}},
	}}
	fx := newWalkerFixture(t, source)

	stats, err := fx.run(t, Options{
		Kind:        pixiv.KindBookmarks,
		TagsInclude: []string{"cat", "sketch"},
		Policy:      MatchAll,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ItemsProcessed)
	assert.Equal(t, []uint64{1}, fx.insertionOrder(t))
}

func TestWalkerTypeFilter(t *testing.T) {
	manga := catalogItem(2)
	manga.Type = pixiv.WorkTypeManga
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{catalogItem(1), manga}},
	}}
	fx := newWalkerFixture(t, source)

	stats, err := fx.run(t, Options{Kind: pixiv.KindBookmarks, TypeFilter: pixiv.WorkTypeManga})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ItemsProcessed)
	assert.Equal(t, []uint64{2}, fx.insertionOrder(t))
}

func TestWalkerSkipsMalformedItems(t *testing.T) {
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{
			{ID: 0, Creator: pixiv.CreatorInfo{ID: 42}},
			catalogItem(1),
		}},
	}}
	fx := newWalkerFixture(t, source)

	stats, err := fx.run(t, Options{Kind: pixiv.KindBookmarks})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ItemsProcessed)
	assert.Equal(t, 1, stats.ItemsSkipped)
}

func TestWalkerMalformedItemsDoNotConsumeCap(t *testing.T) {
	source := &fakeSource{pages: []pixiv.Page{
		{Items: []pixiv.WorkItem{
			{ID: 0, Creator: pixiv.CreatorInfo{ID: 42}},
			catalogItem(7),
		}},
	}}
	fx := newWalkerFixture(t, source)

	stats, err := fx.run(t, Options{Kind: pixiv.KindBookmarks, MaxItems: 1})
	require.NoError(t, err)

	// the malformed entry must not occupy the single cap slot
	assert.Equal(t, 1, stats.ItemsProcessed)
	assert.Equal(t, 1, stats.ItemsSkipped)
	assert.Equal(t, []uint64{7}, fx.insertionOrder(t))
}

func TestWalkerGracefulStopCommitsPendingBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &fakeSource{
		pages: []pixiv.Page{
			{Items: []pixiv.WorkItem{catalogItem(3), catalogItem(2), catalogItem(1)}},
			{Items: []pixiv.WorkItem{catalogItem(4)}},
		},
		cancelPage: 1,
		cancel:     cancel,
	}
	fx := newWalkerFixture(t, source)

	files, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	w := New(fx.source, fx.store, fx.pool, files, Options{Kind: pixiv.KindBookmarks}, nil)

	stats, err := w.Run(ctx)
	require.NoError(t, err)

	// the interrupt arrived mid-fetch with the whole first page still
	// pending under the default batch size; stopping must not discard it
	assert.Equal(t, 3, stats.ItemsProcessed)
	assert.Equal(t, []uint64{1, 2, 3}, fx.insertionOrder(t))
}

func TestWalkerAbortPreservesCommittedBatches(t *testing.T) {
	source := &fakeSource{
		pages: []pixiv.Page{
			{Items: []pixiv.WorkItem{catalogItem(3), catalogItem(2), catalogItem(1)}},
			{Items: []pixiv.WorkItem{catalogItem(0)}},
		},
		failPage: 1,
		failWith: &errs.Error{Type: errs.ErrorTypeNetwork, Message: "remote unreachable"},
	}
	fx := newWalkerFixture(t, source)

	_, err := fx.run(t, Options{
		Kind:        pixiv.KindBookmarks,
		BatchSize:   2,
		PageRetries: 2,
	})
	require.Error(t, err)

	// the first full batch committed before the failing fetch
	assert.Equal(t, []uint64{1, 2}, fx.insertionOrder(t))
}

func TestWalkerAuthFailureIsFatal(t *testing.T) {
	source := &fakeSource{
		pages:    []pixiv.Page{{Items: []pixiv.WorkItem{catalogItem(1)}}},
		failPage: 0,
		failWith: &errs.Error{Type: errs.ErrorTypeAuth, Message: "token expired", Code: 400},
	}
	fx := newWalkerFixture(t, source)

	_, err := fx.run(t, Options{Kind: pixiv.KindBookmarks, PageRetries: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failure")
	assert.Equal(t, 1, source.calls(), "auth failures must not be retried")
}
