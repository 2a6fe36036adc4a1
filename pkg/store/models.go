package store

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Creator is the mirrored account row.
type Creator struct {
	ID         uint64
	Name       string
	Account    string
	IsFollowed bool
	InsertDate int64
}

// Work is the mirrored catalog entry.
type Work struct {
	ID             uint64
	CreatorID      uint64
	Type           string
	Title          string
	PageCount      int
	TotalViews     int
	TotalBookmarks int
	IsBookmarked   bool
	IsDownloaded   bool
	BookmarkRate   sql.NullFloat64
	CreateDate     int64
	InsertDate     int64
}

// Tag is a canonical tag row with its store-generated identity.
type Tag struct {
	ID   int64
	Text string
}

// TagSuggestion is the dashboard's autocomplete result shape.
type TagSuggestion struct {
	Name        string `json:"name"`
	Translation string `json:"translation"`
}

// ImageURLSet is one page's four resolution variants.
type ImageURLSet struct {
	WorkID       uint64
	Page         int
	SquareMedium string
	Medium       string
	Large        string
	Original     string
}

// UgoiraFrames holds an animation work's frame metadata. The delay list is
// stored as compact text and decoded on first access.
type UgoiraFrames struct {
	WorkID    uint64
	DelayText string
	ZipURL    string

	delays  []int
	decoded bool
}

// Delays decodes the stored delay text on first call and memoizes the result.
func (u *UgoiraFrames) Delays() ([]int, error) {
	if !u.decoded {
		d, err := DecodeDelays(u.DelayText)
		if err != nil {
			return nil, err
		}
		u.delays = d
		u.decoded = true
	}
	return u.delays, nil
}

// EncodeDelays renders per-frame delays as space-separated milliseconds.
func EncodeDelays(delays []int) string {
	if len(delays) == 0 {
		return ""
	}
	parts := make([]string, len(delays))
	for i, d := range delays {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, " ")
}

// DecodeDelays parses the space-separated encoding back into a delay list.
// The empty string decodes to an empty list.
func DecodeDelays(text string) ([]int, error) {
	fields := strings.Fields(text)
	delays := make([]int, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad frame delay %q: %w", f, err)
		}
		delays = append(delays, d)
	}
	return delays, nil
}

// bookmarkRate derives bookmarks/views rounded to 5 decimal places. The rate
// is absent unless both counts are present and positive.
func bookmarkRate(views, bookmarks int) sql.NullFloat64 {
	if views <= 0 || bookmarks <= 0 {
		return sql.NullFloat64{}
	}
	r := math.Round(float64(bookmarks)/float64(views)*1e5) / 1e5
	return sql.NullFloat64{Float64: r, Valid: true}
}
