package mirror

import "pixmirror/pkg/pixiv"

// MatchPolicy controls how a work's tag set is compared against a filter
// set. The default is any-match; exclude always takes precedence over
// include when both match.
type MatchPolicy int

const (
	MatchAny MatchPolicy = iota
	MatchAll
)

type itemFilter struct {
	workType pixiv.WorkType
	include  map[string]struct{}
	exclude  map[string]struct{}
	policy   MatchPolicy
}

func newItemFilter(opts Options) *itemFilter {
	return &itemFilter{
		workType: opts.TypeFilter,
		include:  toSet(opts.TagsInclude),
		exclude:  toSet(opts.TagsExclude),
		policy:   opts.Policy,
	}
}

// accepts applies the per-item filtering policy: the type filter, then the
// exclude set, then the include set.
func (f *itemFilter) accepts(item pixiv.WorkItem) bool {
	if f.workType != "" && item.Type != f.workType {
		return false
	}

	tags := make(map[string]struct{}, len(item.Tags))
	for _, t := range item.Tags {
		tags[t.Name] = struct{}{}
	}

	if len(f.exclude) > 0 && f.matches(tags, f.exclude) {
		return false
	}
	if len(f.include) > 0 && !f.matches(tags, f.include) {
		return false
	}
	return true
}

func (f *itemFilter) matches(tags, filter map[string]struct{}) bool {
	switch f.policy {
	case MatchAll:
		for name := range filter {
			if _, ok := tags[name]; !ok {
				return false
			}
		}
		return true
	default: // MatchAny
		for name := range filter {
			if _, ok := tags[name]; ok {
				return true
			}
		}
		return false
	}
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
