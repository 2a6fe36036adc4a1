package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixmirror/pkg/pixiv"
)

func TestTagsLikeMatchesSubstring(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)

	item := testItem(1)
	item.Tags = []pixiv.TagInfo{
		{Name: "landscape", TranslatedName: "風景"},
		{Name: "cityscape"},
		{Name: "portrait"},
	}
	_, err := sess.UpsertWork(item, "en", NewTagCache())
	require.NoError(t, err)
	require.NoError(t, sess.Commit())

	// store-level convenience opens its own read-only session
	got, err := st.TagsLike(context.Background(), "scape", "en")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cityscape", got[0].Name)
	assert.Equal(t, "landscape", got[1].Name)
	assert.Equal(t, "風景", got[1].Translation)
}

func TestTagsLikeEscapesMetacharacters(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)

	item := testItem(1)
	item.Tags = []pixiv.TagInfo{
		{Name: "100%cotton"},
		{Name: "cotton"},
	}
	_, err := sess.UpsertWork(item, "en", NewTagCache())
	require.NoError(t, err)

	got, err := sess.TagsLike("%cotton", "en")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100%cotton", got[0].Name)
}

func TestListWorksNewestFirst(t *testing.T) {
	st := newTestStore(t)
	sess := newWriteSession(t, st)
	cache := NewTagCache()

	for _, id := range []uint64{10, 20, 30} {
		_, err := sess.UpsertWork(testItem(id), "en", cache)
		require.NoError(t, err)
	}
	require.NoError(t, sess.Commit())

	check, err := st.Begin(context.Background(), ReadOnly)
	require.NoError(t, err)
	defer check.Close()

	total, err := check.CountWorks()
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	items, err := check.ListWorks(2, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, uint64(30), items[0].WorkID)
	assert.Equal(t, uint64(20), items[1].WorkID)
	assert.Equal(t, "painter", items[0].CreatorName)

	items, err = check.ListWorks(2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(10), items[0].WorkID)
}
