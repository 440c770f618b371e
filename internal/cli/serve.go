package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/recall/internal/server"
)

const (
	shutdownTimeout = 5 * time.Second
	backfillTimeout = 5 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.startIndexing(ctx)

	addr := a.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(a.db, a.engine, a.pipeline, VersionString(), a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("recall serving", "addr", addr, "db", a.db.Path, "modes", a.pipeline.Modes())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}

// startIndexing embeds pending documents in the background and starts the
// refit and re-embedding schedule when one is configured.
func (a *app) startIndexing(ctx context.Context) {
	go func() {
		ctx, cancel := context.WithTimeout(ctx, backfillTimeout)
		defer cancel()
		if n, err := a.engine.EmbedMissing(ctx); err != nil {
			a.logger.Warn("embed missing", "err", err)
		} else if n > 0 {
			a.logger.Info("embedded missing documents", "count", n)
		}
	}()

	if a.cfg.Index.Schedule == "" {
		return
	}
	if err := a.engine.StartScheduler(a.cfg.Index.Schedule); err != nil {
		a.logger.Warn("embedding scheduler disabled", "err", err)
	}
}
