package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/logger"
	"github.com/vertextoedge/safe-downloader/internal/service/transfer"
	"github.com/vertextoedge/safe-downloader/internal/terminal"
	"go.uber.org/zap"
)

// exitCancelled follows the shell convention for SIGINT
const exitCancelled = 130

func newGetCmd(a *app) *cobra.Command {
	var destDir string

	cmd := &cobra.Command{
		Use:   "get URL [--dest DIR]",
		Short: "Download one file into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGet(ctx, a, args[0], destDir)
		},
	}

	cmd.Flags().StringVarP(&destDir, "dest", "d", "", "Destination directory (default: download.dest_dir or the current directory)")
	return cmd
}

func runGet(ctx context.Context, a *app, rawURL, destDir string) error {
	zapLogger := logger.GetZapLogger()

	dir, err := resolveDestDir(destDir, a.cfg.Download.DestDir)
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	req, err := domain.NewDownloadRequest(rawURL, dir)
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	c, err := buildComponents(a.cfg, zapLogger)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("failed to open database: %w", err)}
	}
	defer c.close()

	renderer := terminal.NewRenderer(os.Stdout, req.TargetPath(), 0)
	controller := transfer.NewController(c.fs, c.transport, c.dispatcher, renderer, zapLogger, transferConfig(a.cfg))

	if _, err := controller.Start(req); err != nil {
		return &exitError{code: 1, err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- controller.Wait(context.Background())
	}()

	select {
	case <-done:
	case <-ctx.Done():
		zapLogger.Debug("interrupt received, cancelling transfer")
		if err := controller.Cancel(); err != nil {
			zapLogger.Debug("cancel ignored", zap.Error(err))
		}
		<-done
	}

	snap, ok := controller.Last()
	if !ok {
		return &exitError{code: 1, err: fmt.Errorf("transfer did not finish")}
	}

	switch snap.State {
	case domain.StateCompleted:
		return nil
	case domain.StateCancelled:
		// The renderer already reported the outcome
		return &exitError{code: exitCancelled}
	default:
		return &exitError{code: 1}
	}
}

// resolveDestDir picks the flag, then the configured directory, then the
// working directory, and makes the result absolute
func resolveDestDir(flagValue, configured string) (string, error) {
	dir := flagValue
	if dir == "" {
		dir = configured
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}
