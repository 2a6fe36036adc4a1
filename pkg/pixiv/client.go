package pixiv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "pixmirror/pkg/errors"
	"pixmirror/pkg/logger"
	"pixmirror/pkg/ratelimit"
)

const (
	apiBase     = "https://app-api.pixiv.net"
	imageRefer  = "https://app-api.pixiv.net/"
	defaultUA   = "PixivAndroidApp/5.0.234 (Android 11; Pixel 5)"
	pageTimeout = 30 * time.Second
)

// Options configures the HTTP client.
type Options struct {
	// AccessToken is a bearer token obtained by the (external) login flow.
	AccessToken string
	// AccountID is the authenticated account's id.
	AccountID uint64
	// Language requested for tag translations, e.g. "en" or "zh-cn".
	Language string
	// Restrict selects public or private bookmarks.
	Restrict string
	// UserAgent overrides the default app user agent.
	UserAgent string
	// DownloadTimeout bounds a single media download request.
	DownloadTimeout time.Duration
}

// Client is the HTTP implementation of Source against the platform's app API.
type Client struct {
	http        *http.Client
	download    *http.Client
	accessToken string
	accountID   uint64
	language    string
	restrict    string
	userAgent   string
	limiter     ratelimit.Limiter
	log         logger.Logger
}

// NewClient creates a Source backed by the platform's app API. The limiter
// paces page fetches; downloads are paced by the worker pool instead.
func NewClient(opts Options, limiter ratelimit.Limiter, log logger.Logger) *Client {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUA
	}
	restrict := opts.Restrict
	if restrict == "" {
		restrict = "public"
	}
	dlTimeout := opts.DownloadTimeout
	if dlTimeout <= 0 {
		dlTimeout = 60 * time.Second
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		http:        &http.Client{Timeout: pageTimeout},
		download:    &http.Client{Timeout: dlTimeout},
		accessToken: opts.AccessToken,
		accountID:   opts.AccountID,
		language:    opts.Language,
		restrict:    restrict,
		userAgent:   ua,
		limiter:     limiter,
		log:         log,
	}
}

// AccountID returns the authenticated account's id.
func (c *Client) AccountID() uint64 {
	return c.accountID
}

// FetchPage fetches one catalog page. The continuation token is the next_url
// returned by the previous page, used verbatim.
func (c *Client) FetchPage(ctx context.Context, kind Kind, creatorID uint64, token string) (*Page, error) {
	endpoint := token
	if endpoint == "" {
		switch kind {
		case KindBookmarks:
			endpoint = fmt.Sprintf("%s/v1/user/bookmarks/illust?user_id=%d&restrict=%s", apiBase, creatorID, c.restrict)
		case KindWorks:
			endpoint = fmt.Sprintf("%s/v1/user/illusts?user_id=%d", apiBase, creatorID)
		default:
			return nil, fmt.Errorf("unknown traversal kind %q", kind)
		}
	}

	var resp illustsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	page := &Page{NextToken: resp.NextURL}
	for _, w := range resp.Illusts {
		item, err := c.toWorkItem(ctx, w)
		if err != nil {
			c.log.WarnWithFields("skipping malformed catalog item", map[string]interface{}{
				"work_id": w.ID,
				"error":   err.Error(),
			})
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// Download opens a media file. The platform requires a referer header on its
// image hosts.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Referer", imageRefer)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, &errs.Error{Type: errs.ErrorTypeNetwork, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &errs.Error{
			Type:    errs.ClassifyStatusCode(resp.StatusCode),
			Message: fmt.Sprintf("unexpected status downloading %s", rawURL),
			Code:    resp.StatusCode,
		}
	}
	return resp.Body, nil
}

// getJSON performs an authenticated GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Debug("rate limit reached, waiting for page fetch slot")
		c.limiter.Wait()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", c.language)

	resp, err := c.http.Do(req)
	if err != nil {
		return &errs.Error{Type: errs.ErrorTypeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &errs.Error{
			Type:    errs.ClassifyStatusCode(resp.StatusCode),
			Message: string(body),
			Code:    resp.StatusCode,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errs.Error{Type: errs.ErrorTypeParsing, Message: err.Error()}
	}
	return nil
}

// CreatorDetail fetches a creator's full profile block. The walker uses it
// once per run to mirror the target creator's detail row.
func (c *Client) CreatorDetail(ctx context.Context, creatorID uint64) (*CreatorInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/user/detail?user_id=%d", apiBase, creatorID)

	var resp userDetailResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.User.ID == 0 {
		return nil, &errs.Error{Type: errs.ErrorTypeParsing, Message: "user detail missing id"}
	}

	return &CreatorInfo{
		ID:         resp.User.ID,
		Name:       resp.User.Name,
		Account:    resp.User.Account,
		IsFollowed: resp.User.IsFollowed,
		Profile: &CreatorProfile{
			TotalIllusts:         resp.Profile.TotalIllusts,
			TotalManga:           resp.Profile.TotalManga,
			TotalNovels:          resp.Profile.TotalNovels,
			TotalPublicBookmarks: resp.Profile.TotalIllustBookmarksPublic,
			TotalFollowUsers:     resp.Profile.TotalFollowUsers,
			AvatarURL:            resp.User.ProfileImageURLs.Medium,
			BackgroundURL:        resp.Profile.BackgroundImageURL,
			Comment:              resp.User.Comment,
		},
	}, nil
}

// ugoiraMetadata fetches the frame delay list and archive URL for an
// animation work.
func (c *Client) ugoiraMetadata(ctx context.Context, workID uint64) (*UgoiraInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/ugoira/metadata?illust_id=%d", apiBase, workID)

	var resp ugoiraResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	info := &UgoiraInfo{ZipURL: resp.Metadata.ZipURLs.Medium}
	for _, f := range resp.Metadata.Frames {
		info.Delays = append(info.Delays, f.Delay)
	}
	return info, nil
}

// toWorkItem converts a wire illust into the consumed record, fetching ugoira
// metadata for animation works.
func (c *Client) toWorkItem(ctx context.Context, w wireIllust) (WorkItem, error) {
	if w.ID == 0 {
		return WorkItem{}, fmt.Errorf("missing work id")
	}
	if w.User.ID == 0 {
		return WorkItem{}, fmt.Errorf("missing creator id")
	}

	item := WorkItem{
		ID: w.ID,
		Creator: CreatorInfo{
			ID:         w.User.ID,
			Name:       w.User.Name,
			Account:    w.User.Account,
			IsFollowed: w.User.IsFollowed,
		},
		Type:           WorkType(w.Type),
		Title:          w.Title,
		Caption:        w.Caption,
		PageCount:      w.PageCount,
		TotalViews:     w.TotalView,
		TotalBookmarks: w.TotalBookmarks,
		IsBookmarked:   w.IsBookmarked,
	}

	if w.CreateDate != "" {
		t, err := time.Parse(time.RFC3339, w.CreateDate)
		if err != nil {
			return WorkItem{}, fmt.Errorf("bad create_date %q: %w", w.CreateDate, err)
		}
		item.CreatedAt = t
	}

	for _, t := range w.Tags {
		item.Tags = append(item.Tags, TagInfo{Name: t.Name, TranslatedName: t.TranslatedName})
	}

	if w.PageCount > 1 && len(w.MetaPages) > 0 {
		for _, p := range w.MetaPages {
			item.Pages = append(item.Pages, ImageURLs{
				SquareMedium: p.ImageURLs.SquareMedium,
				Medium:       p.ImageURLs.Medium,
				Large:        p.ImageURLs.Large,
				Original:     p.ImageURLs.Original,
			})
		}
	} else if w.PageCount == 1 {
		item.SinglePage = &ImageURLs{
			SquareMedium: w.ImageURLs.SquareMedium,
			Medium:       w.ImageURLs.Medium,
			Large:        w.ImageURLs.Large,
			Original:     w.MetaSinglePage.OriginalImageURL,
		}
	}

	if item.Type == WorkTypeUgoira {
		ug, err := c.ugoiraMetadata(ctx, w.ID)
		if err != nil {
			return WorkItem{}, fmt.Errorf("ugoira metadata: %w", err)
		}
		item.Ugoira = ug
	}

	return item, nil
}

// wire types for the app API payloads

type illustsResponse struct {
	Illusts []wireIllust `json:"illusts"`
	NextURL string       `json:"next_url"`
}

type wireIllust struct {
	ID             uint64        `json:"id"`
	Title          string        `json:"title"`
	Type           string        `json:"type"`
	Caption        string        `json:"caption"`
	User           wireUser      `json:"user"`
	Tags           []wireTag     `json:"tags"`
	CreateDate     string        `json:"create_date"`
	PageCount      int           `json:"page_count"`
	TotalView      int           `json:"total_view"`
	TotalBookmarks int           `json:"total_bookmarks"`
	IsBookmarked   bool          `json:"is_bookmarked"`
	ImageURLs      wireImageURLs `json:"image_urls"`
	MetaSinglePage struct {
		OriginalImageURL string `json:"original_image_url"`
	} `json:"meta_single_page"`
	MetaPages []struct {
		ImageURLs wireImageURLs `json:"image_urls"`
	} `json:"meta_pages"`
}

type wireUser struct {
	ID               uint64 `json:"id"`
	Name             string `json:"name"`
	Account          string `json:"account"`
	IsFollowed       bool   `json:"is_followed"`
	Comment          string `json:"comment"`
	ProfileImageURLs struct {
		Medium string `json:"medium"`
	} `json:"profile_image_urls"`
}

type userDetailResponse struct {
	User    wireUser `json:"user"`
	Profile struct {
		TotalIllusts               int    `json:"total_illusts"`
		TotalManga                 int    `json:"total_manga"`
		TotalNovels                int    `json:"total_novels"`
		TotalIllustBookmarksPublic int    `json:"total_illust_bookmarks_public"`
		TotalFollowUsers           int    `json:"total_follow_users"`
		BackgroundImageURL         string `json:"background_image_url"`
	} `json:"profile"`
}

type wireTag struct {
	Name           string `json:"name"`
	TranslatedName string `json:"translated_name"`
}

type wireImageURLs struct {
	SquareMedium string `json:"square_medium"`
	Medium       string `json:"medium"`
	Large        string `json:"large"`
	Original     string `json:"original"`
}

type ugoiraResponse struct {
	Metadata struct {
		ZipURLs struct {
			Medium string `json:"medium"`
		} `json:"zip_urls"`
		Frames []struct {
			File  string `json:"file"`
			Delay int    `json:"delay"`
		} `json:"frames"`
	} `json:"ugoira_metadata"`
}
