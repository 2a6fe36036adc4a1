package pixiv

import (
	"context"
	"io"
	"time"
)

// Kind selects which catalog of a creator is traversed.
type Kind string

const (
	KindBookmarks Kind = "bookmarks"
	KindWorks     Kind = "works"
)

// WorkType is the remote platform's work classification.
type WorkType string

const (
	WorkTypeIllust WorkType = "illust"
	WorkTypeManga  WorkType = "manga"
	WorkTypeUgoira WorkType = "ugoira"
)

// TagInfo is a tag as delivered on a work, with an optional translation
// in the client's configured language.
type TagInfo struct {
	Name           string
	TranslatedName string
}

// ImageURLs holds the four resolution variants of one page.
type ImageURLs struct {
	SquareMedium string
	Medium       string
	Large        string
	Original     string
}

// CreatorProfile carries the profile detail block attached to a work's creator.
type CreatorProfile struct {
	TotalIllusts         int
	TotalManga           int
	TotalNovels          int
	TotalPublicBookmarks int
	TotalFollowUsers     int
	AvatarURL            string
	BackgroundURL        string
	Comment              string
}

// CreatorInfo identifies the account that published a work.
type CreatorInfo struct {
	ID         uint64
	Name       string
	Account    string
	IsFollowed bool
	Profile    *CreatorProfile
}

// UgoiraInfo describes a short animation: per-frame delays in milliseconds
// plus the source archive URL.
type UgoiraInfo struct {
	ZipURL string
	Delays []int
}

// WorkItem is one catalog entry as returned by a page fetch. It is a plain
// immutable record; the persistence layer owns the mirrored entities built
// from it.
type WorkItem struct {
	ID             uint64
	Creator        CreatorInfo
	Type           WorkType
	Title          string
	Caption        string
	PageCount      int
	TotalViews     int
	TotalBookmarks int
	IsBookmarked   bool
	Tags           []TagInfo
	CreatedAt      time.Time

	// SinglePage is set for page_count == 1 works; Pages for multi-page works.
	SinglePage *ImageURLs
	Pages      []ImageURLs

	// Ugoira is set for animation works.
	Ugoira *UgoiraInfo
}

// Page is one fetched slice of the remote catalog, newest-first, with the
// continuation token for the next fetch ("" means the catalog is exhausted).
type Page struct {
	Items     []WorkItem
	NextToken string
}

// Source is the narrow contract the mirror consumes. Authentication and
// session lifetime are entirely the implementation's responsibility.
type Source interface {
	// FetchPage returns one page of the given catalog. token is the
	// continuation token from the previous page, or "" for the first fetch.
	FetchPage(ctx context.Context, kind Kind, creatorID uint64, token string) (*Page, error)

	// Download opens a media file referenced by an ingested work.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// AccountID is the authenticated account, used as the default traversal
	// target.
	AccountID() uint64
}
