package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixmirror/pkg/pixiv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newWriteSession(t *testing.T, st *Store) *Session {
	t.Helper()
	sess, err := st.Begin(context.Background(), ReadWrite)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func testItem(id uint64) pixiv.WorkItem {
	return pixiv.WorkItem{
		ID: id,
		Creator: pixiv.CreatorInfo{
			ID:      77,
			Name:    "painter",
			Account: "painter_acct",
		},
		Type:           pixiv.WorkTypeIllust,
		Title:          "sunrise",
		Caption:        "over the bay",
		PageCount:      1,
		TotalViews:     1000,
		TotalBookmarks: 250,
		IsBookmarked:   true,
		Tags: []pixiv.TagInfo{
			{Name: "landscape", TranslatedName: "風景"},
		},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		SinglePage: &pixiv.ImageURLs{
			Medium:   "https://img.example/medium/1.jpg",
			Original: "https://img.example/original/1.png",
		},
	}
}

func TestUpsertWorkCreatesThenMerges(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)
	cache := NewTagCache()

	created, err := sess.UpsertWork(testItem(1), "en", cache)
	require.NoError(t, err)
	assert.True(t, created)

	// second sight of the same work updates counts in place
	item := testItem(1)
	item.TotalViews = 2000
	item.TotalBookmarks = 500
	created, err = sess.UpsertWork(item, "en", cache)
	require.NoError(t, err)
	assert.False(t, created)

	w, err := sess.GetWork(1)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 2000, w.TotalViews)
	assert.Equal(t, 500, w.TotalBookmarks)
	assert.Equal(t, "sunrise", w.Title)
	assert.Equal(t, "illust", w.Type)
}

func TestUpsertWorkUnsetFieldsDoNotOverwrite(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)
	cache := NewTagCache()

	_, err := sess.UpsertWork(testItem(1), "en", cache)
	require.NoError(t, err)

	// a sparse record, as a bookmark listing might deliver
	sparse := pixiv.WorkItem{
		ID:      1,
		Creator: pixiv.CreatorInfo{ID: 77},
	}
	created, err := sess.UpsertWork(sparse, "en", cache)
	require.NoError(t, err)
	assert.False(t, created)

	w, err := sess.GetWork(1)
	require.NoError(t, err)
	assert.Equal(t, "sunrise", w.Title)
	assert.Equal(t, "illust", w.Type)
	assert.Equal(t, 1, w.PageCount)
	assert.Equal(t, 1000, w.TotalViews)
	assert.True(t, w.BookmarkRate.Valid)
	assert.NotZero(t, w.CreateDate)
}

func TestUpsertWorkBookmarkRate(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)
	cache := NewTagCache()

	item := testItem(1)
	item.TotalViews = 3
	item.TotalBookmarks = 1
	_, err := sess.UpsertWork(item, "en", cache)
	require.NoError(t, err)

	w, err := sess.GetWork(1)
	require.NoError(t, err)
	require.True(t, w.BookmarkRate.Valid)
	assert.InDelta(t, 0.33333, w.BookmarkRate.Float64, 1e-9)

	// no views yet means no rate
	item = testItem(2)
	item.TotalViews = 0
	item.TotalBookmarks = 10
	_, err = sess.UpsertWork(item, "en", cache)
	require.NoError(t, err)

	w, err = sess.GetWork(2)
	require.NoError(t, err)
	assert.False(t, w.BookmarkRate.Valid)
}

func TestInsertionOrderIsFirstSightAndStable(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)
	cache := NewTagCache()

	for _, id := range []uint64{10, 20, 30} {
		_, err := sess.UpsertWork(testItem(id), "en", cache)
		require.NoError(t, err)
	}

	// re-ingesting must not reassign positions
	_, err := sess.UpsertWork(testItem(20), "en", cache)
	require.NoError(t, err)

	order, err := sess.InsertionOrder()
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20, 30}, order)
}

func TestUpsertWorkValidation(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)

	_, err := sess.UpsertWork(pixiv.WorkItem{Creator: pixiv.CreatorInfo{ID: 1}}, "en", NewTagCache())
	assert.Error(t, err)

	_, err = sess.UpsertWork(pixiv.WorkItem{ID: 5}, "en", NewTagCache())
	assert.Error(t, err)
}

func TestReadOnlySessionRejectsWrites(t *testing.T) {
	st := newTestStore(t)

	sess, err := st.Begin(context.Background(), ReadOnly)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.UpsertWork(testItem(1), "en", NewTagCache())
	assert.ErrorIs(t, err, ErrReadOnlySession)

	err = sess.UpsertCreator(pixiv.CreatorInfo{ID: 9, Name: "x"})
	assert.ErrorIs(t, err, ErrReadOnlySession)

	err = sess.AddCustomTag(1, "fav")
	assert.ErrorIs(t, err, ErrReadOnlySession)
}

func TestSetDownloadedSurvivesMerges(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess := newWriteSession(t, st)
	_, err := sess.UpsertWork(testItem(1), "en", NewTagCache())
	require.NoError(t, err)
	require.NoError(t, sess.Commit())

	require.NoError(t, st.SetDownloaded(ctx, 1, true))

	// a later metadata merge must not clear the flag
	sess2 := newWriteSession(t, st)
	_, err = sess2.UpsertWork(testItem(1), "en", NewTagCache())
	require.NoError(t, err)
	require.NoError(t, sess2.Commit())

	check, err := st.Begin(ctx, ReadOnly)
	require.NoError(t, err)
	defer check.Close()

	w, err := check.GetWork(1)
	require.NoError(t, err)
	assert.True(t, w.IsDownloaded)
}

func TestUgoiraAndCaptionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)

	item := testItem(1)
	item.Type = pixiv.WorkTypeUgoira
	item.Ugoira = &pixiv.UgoiraInfo{
		ZipURL: "https://img.example/1_ugoira600x600.zip",
		Delays: []int{80, 80, 120},
	}
	_, err := sess.UpsertWork(item, "en", NewTagCache())
	require.NoError(t, err)

	u, err := sess.GetUgoira(1)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "https://img.example/1_ugoira600x600.zip", u.ZipURL)
	delays, err := u.Delays()
	require.NoError(t, err)
	assert.Equal(t, []int{80, 80, 120}, delays)

	caption, ok, err := sess.GetCaption(1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "over the bay", caption)
}

func TestImageURLPages(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)

	item := testItem(1)
	item.PageCount = 3
	item.SinglePage = nil
	item.Pages = []pixiv.ImageURLs{
		{Original: "https://img.example/1_p0.png"},
		{Original: "https://img.example/1_p1.png"},
		{Original: "https://img.example/1_p2.png"},
	}
	_, err := sess.UpsertWork(item, "en", NewTagCache())
	require.NoError(t, err)

	urls, err := sess.ImageURLs(1)
	require.NoError(t, err)
	require.Len(t, urls, 3)
	for i, u := range urls {
		assert.Equal(t, i, u.Page)
	}
	assert.Equal(t, "https://img.example/1_p2.png", urls[2].Original)
}
