package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pixmirror/pkg/store"
	"pixmirror/pkg/web"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only dashboard over the local mirror",
	Long: `Serve a small HTTP dashboard over the mirror database: the catalog in
discovery order, per-work detail with tags and captions, tag autocomplete,
and the downloaded media files under /files.

The dashboard never writes; it can run while a mirror run is in progress.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Web.Addr
	}

	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.New(st, cfg.Storage.WorksDirectory, cfg.Pixiv.Language, log)
	return srv.Run(ctx, addr)
}
