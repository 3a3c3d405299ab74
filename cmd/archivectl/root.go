package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/internal/archive"
	"github.com/noah-isme/attendance-archive-api/internal/client"
	"github.com/noah-isme/attendance-archive-api/pkg/config"
	"github.com/noah-isme/attendance-archive-api/pkg/logger"
)

var rootFlags struct {
	apiURL      string
	token       string
	downloadDir string
	yes         bool
	verbose     bool
}

// console is shared by every subcommand once the root pre-run has connected.
var console *session

var rootCmd = &cobra.Command{
	Use:   "archivectl",
	Short: "Administer the monthly attendance archive",
	Long: `archivectl drives the monthly archive lifecycle of the attendance API.

Administrators export a month's data, mark it complete and, during the cleanup
window on days 1-3 at the start of the following month, delete its photos and
records.
Destructive commands always show what will be deleted and ask before running.`,
	SilenceUsage:      true,
	PersistentPreRunE: connect,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.apiURL, "api-url", "", "archive API base URL (default ARCHIVE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.token, "token", "", "bearer token (default ARCHIVE_API_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.downloadDir, "output-dir", "o", "", "directory for downloaded exports (default ARCHIVE_DOWNLOAD_DIR or .)")
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.yes, "yes", "y", false, "skip yes/no confirmations (the clear-all phrase is still required)")
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "log API requests")
}

// session bundles the controller with the terminal it talks to.
type session struct {
	ctrl   *archive.Controller
	in     *bufio.Reader
	out    io.Writer
	yes    bool
	phrase string
}

func connect(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRootFlags(cfg)

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	api, err := client.New(cfg.Client, nil, logger.Component(log, "archive_client"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	user, err := api.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	ctrl := archive.NewController(api, archive.DirSaver{Dir: cfg.Client.DownloadDir}, user, archive.Config{
		ClearAllPhrase: cfg.Archive.ClearAllPhrase,
		Location:       cfg.Archive.Location(),
		Logger:         logger.Component(log, "archive_console"),
	})
	if st := ctrl.Refresh(ctx); !st.OK() {
		return statusErr(st)
	}

	phrase := cfg.Archive.ClearAllPhrase
	if phrase == "" {
		phrase = archive.DefaultClearAllPhrase
	}
	console = &session{
		ctrl:   ctrl,
		in:     bufio.NewReader(cmd.InOrStdin()),
		out:    cmd.OutOrStdout(),
		yes:    rootFlags.yes,
		phrase: phrase,
	}
	log.Debug("archive console ready", zap.String("user_id", user.User.ID), zap.Bool("admin", user.IsAdmin()))
	return nil
}

func applyRootFlags(cfg *config.Config) {
	if rootFlags.apiURL != "" {
		cfg.Client.BaseURL = rootFlags.apiURL
	}
	if rootFlags.token != "" {
		cfg.Client.Token = rootFlags.token
	}
	if rootFlags.downloadDir != "" {
		cfg.Client.DownloadDir = rootFlags.downloadDir
	}
	if cfg.Client.DownloadDir == "" {
		cfg.Client.DownloadDir = "."
	}
	cfg.Log.Format = "console"
	if rootFlags.verbose {
		cfg.Log.Level = "debug"
	} else {
		cfg.Log.Level = "warn"
	}
}
