package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/profacademy/profacademy/internal/server"
	"github.com/profacademy/profacademy/internal/tutor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tutoring sessions over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd, os.Stderr, true)
	if err != nil {
		return err
	}
	defer e.Close()

	addr := e.cfg.Server.Addr
	if a, _ := cmd.Flags().GetString("addr"); a != "" {
		addr = a
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager := tutor.NewManager(e.tutorDeps())
	defer manager.CloseAll()

	handler := server.New(server.Options{
		Manager:       manager,
		Catalog:       e.catalog,
		Progress:      e.progress,
		Logger:        e.logger,
		Registry:      reg,
		RatePerSecond: e.cfg.Server.RatePerSecond,
		Burst:         e.cfg.Server.Burst,
	})

	// Streams stay open for a whole reply, so there is no write timeout.
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx := cmd.Context()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("server listening", zap.String("addr", addr), zap.Bool("demo", e.cfg.Demo))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		e.logger.Info("shutting down server")
		manager.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
