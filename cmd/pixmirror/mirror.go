package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pixmirror/internal/downloader"
	"pixmirror/pkg/config"
	"pixmirror/pkg/mirror"
	"pixmirror/pkg/pixiv"
	"pixmirror/pkg/ratelimit"
	"pixmirror/pkg/session"
	"pixmirror/pkg/storage"
	"pixmirror/pkg/store"
)

var (
	// Mirror command flags
	mirrorCreator    uint64
	mirrorMax        int
	mirrorType       string
	mirrorInclude    string
	mirrorExclude    string
	mirrorMatchAll   bool
	mirrorPrivate    bool
	mirrorBatch      int
	mirrorConcurrent int
	mirrorAccount    string
)

// mirrorCmd represents the mirror command
var mirrorCmd = &cobra.Command{
	Use:   "mirror <bookmarks|works>",
	Short: "Traverse a creator's catalog and mirror it locally",
	Long: `Traverse one catalog of a creator, persisting metadata into the local
database and downloading media files concurrently.

"bookmarks" walks the creator's bookmarked works; "works" walks the works the
creator published. Without --creator the authenticated account is the target.

A token must be available through 'pixmirror auth store', the
PIXMIRROR_ACCESS_TOKEN environment variable, or the configuration file.`,
	Example: `  # Mirror your own bookmarks
  pixmirror mirror bookmarks

  # Mirror another creator's published works, illustrations only
  pixmirror mirror works --creator 11 --type illust

  # Tag filtering; sets are ;-separated, exclusion wins over inclusion
  pixmirror mirror bookmarks --include "cat;dog" --exclude "nsfw"

  # Cap the run and raise download parallelism
  pixmirror mirror bookmarks --max 200 --concurrent 8`,
	Args: cobra.ExactArgs(1),
	RunE: runMirror,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)

	mirrorCmd.Flags().Uint64Var(&mirrorCreator, "creator", 0, "creator id to traverse (default: authenticated account)")
	mirrorCmd.Flags().IntVar(&mirrorMax, "max", 0, "maximum number of works to process (0 = unlimited)")
	mirrorCmd.Flags().StringVar(&mirrorType, "type", "", "keep only one work type (illust, manga, ugoira)")
	mirrorCmd.Flags().StringVar(&mirrorInclude, "include", "", "keep works matching these tags (;-separated)")
	mirrorCmd.Flags().StringVar(&mirrorExclude, "exclude", "", "drop works matching these tags (;-separated)")
	mirrorCmd.Flags().BoolVar(&mirrorMatchAll, "match-all", false, "require all filter tags instead of any")
	mirrorCmd.Flags().BoolVar(&mirrorPrivate, "private", false, "walk private bookmarks instead of public")
	mirrorCmd.Flags().IntVar(&mirrorBatch, "batch", 0, "works per metadata commit (default from config)")
	mirrorCmd.Flags().IntVar(&mirrorConcurrent, "concurrent", 0, "concurrent downloads (default from config)")
	mirrorCmd.Flags().StringVarP(&mirrorAccount, "account", "a", "", "use a specific stored account")
}

func runMirror(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	applyMirrorFlags(cfg)

	token, accountID, err := resolveToken(cfg)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	files, err := storage.NewManager(cfg.Storage.WorksDirectory)
	if err != nil {
		return err
	}

	restrict := "public"
	if mirrorPrivate {
		restrict = "private"
	}
	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	client := pixiv.NewClient(pixiv.Options{
		AccessToken:     token,
		AccountID:       accountID,
		Language:        cfg.Pixiv.Language,
		Restrict:        restrict,
		UserAgent:       cfg.Pixiv.UserAgent,
		DownloadTimeout: cfg.Download.DownloadTimeout,
	}, limiter, log)

	// downloads keep their own lifetime: a ctrl-c stops the traversal while
	// queued downloads drain
	pool := downloader.NewPool(downloader.Config{
		Workers:  cfg.Download.Concurrency,
		Attempts: cfg.Download.RetryAttempts,
	}, client, files, log, func(workID uint64, complete bool) {
		if err := st.SetDownloaded(context.Background(), workID, complete); err != nil {
			log.WithError(err).WithField("work_id", workID).Error("failed to record download state")
		}
	})
	pool.Start(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	walker := mirror.New(client, st, pool, files, mirror.Options{
		Kind:        kind,
		CreatorID:   mirrorCreator,
		MaxItems:    mirrorMax,
		TypeFilter:  pixiv.WorkType(mirrorType),
		TagsInclude: splitTags(mirrorInclude),
		TagsExclude: splitTags(mirrorExclude),
		Policy:      matchPolicy(),
		BatchSize:   cfg.Mirror.BatchSize,
		PageRetries: cfg.Mirror.PageRetries,
		Language:    cfg.Pixiv.Language,
	}, log)

	stats, runErr := walker.Run(ctx)

	if n := pool.Outstanding(); n > 0 {
		log.WithField("outstanding", n).Info("waiting for downloads to finish")
	}
	pool.Stop()
	dl := pool.Stats()

	printReport(stats, dl)
	return runErr
}

func applyMirrorFlags(cfg *config.Config) {
	if mirrorBatch > 0 {
		cfg.Mirror.BatchSize = mirrorBatch
	}
	if mirrorConcurrent > 0 {
		cfg.Download.Concurrency = mirrorConcurrent
	}
}

// resolveToken prefers the explicitly configured token, then the stored
// session for the selected account. Even with a configured token the session
// chain is still consulted for the account id, which the default traversal
// target needs.
func resolveToken(cfg *config.Config) (string, uint64, error) {
	account := mirrorAccount
	if account == "" {
		account = cfg.Pixiv.Account
	}
	tok, err := session.NewManager().Retrieve(account)

	if cfg.Pixiv.AccessToken != "" {
		var accountID uint64
		if err == nil {
			accountID = tok.AccountID
		}
		return cfg.Pixiv.AccessToken, accountID, nil
	}

	if err != nil {
		return "", 0, fmt.Errorf("no access token available (run 'pixmirror auth store' first): %w", err)
	}
	return tok.AccessToken, tok.AccountID, nil
}

func parseKind(s string) (pixiv.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bookmarks":
		return pixiv.KindBookmarks, nil
	case "works":
		return pixiv.KindWorks, nil
	default:
		return "", fmt.Errorf("unknown catalog %q (want bookmarks or works)", s)
	}
}

func matchPolicy() mirror.MatchPolicy {
	if mirrorMatchAll {
		return mirror.MatchAll
	}
	return mirror.MatchAny
}

// splitTags parses a ;-separated tag set.
func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printReport(stats *mirror.Stats, dl downloader.Stats) {
	fmt.Println()
	fmt.Println("Run complete")
	fmt.Printf("  pages fetched:   %d\n", stats.PagesFetched)
	fmt.Printf("  works created:   %d\n", stats.WorksCreated)
	fmt.Printf("  works updated:   %d\n", stats.WorksUpdated)
	fmt.Printf("  items skipped:   %d\n", stats.ItemsSkipped)
	fmt.Printf("  files downloaded: %d (skipped %d, failed %d)\n",
		dl.Succeeded, dl.Skipped, dl.Failed)
}
