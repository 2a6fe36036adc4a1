package mirror

import (
	"testing"

	"pixmirror/pkg/pixiv"
)

func tagged(tags ...string) pixiv.WorkItem {
	item := pixiv.WorkItem{ID: 1, Type: pixiv.WorkTypeIllust}
	for _, t := range tags {
		item.Tags = append(item.Tags, pixiv.TagInfo{Name: t})
	}
	return item
}

func TestFilterAccepts(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		item pixiv.WorkItem
		want bool
	}{
		{
			name: "no filters accept everything",
			opts: Options{},
			item: tagged("anything"),
			want: true,
		},
		{
			name: "include any matches one tag",
			opts: Options{TagsInclude: []string{"cat", "dog"}},
			item: tagged("cat", "sketch"),
			want: true,
		},
		{
			name: "include any rejects disjoint set",
			opts: Options{TagsInclude: []string{"cat", "dog"}},
			item: tagged("bird"),
			want: false,
		},
		{
			name: "exclude wins over include",
			opts: Options{TagsInclude: []string{"cat"}, TagsExclude: []string{"nsfw"}},
			item: tagged("cat", "nsfw"),
			want: false,
		},
		{
			name: "match all requires every tag",
			opts: Options{TagsInclude: []string{"cat", "sketch"}, Policy: MatchAll},
			item: tagged("cat"),
			want: false,
		},
		{
			name: "match all accepts superset",
			opts: Options{TagsInclude: []string{"cat", "sketch"}, Policy: MatchAll},
			item: tagged("cat", "sketch", "wip"),
			want: true,
		},
		{
			name: "type filter rejects other types",
			opts: Options{TypeFilter: pixiv.WorkTypeUgoira},
			item: tagged("cat"),
			want: false,
		},
		{
			name: "exclude alone passes untagged items",
			opts: Options{TagsExclude: []string{"nsfw"}},
			item: tagged(),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newItemFilter(tt.opts)
			if got := f.accepts(tt.item); got != tt.want {
				t.Errorf("accepts() = %v, want %v", got, tt.want)
			}
		})
	}
}
