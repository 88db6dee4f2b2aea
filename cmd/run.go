package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/app"
	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/config"
	"github.com/profacademy/profacademy/internal/llm"
	"github.com/profacademy/profacademy/internal/logging"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/store"
	"github.com/profacademy/profacademy/internal/tutor"
)

// env is everything a command needs to run lessons.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	catalog  *catalog.Catalog
	progress *progress.Repository
	provider llm.Provider
}

// tutorDeps returns the collaborators shared by sessions.
func (e *env) tutorDeps() tutor.Deps {
	return tutor.Deps{
		Catalog:        e.catalog,
		Provider:       e.provider,
		Progress:       e.progress,
		Archive:        e.store.TranscriptRepo(),
		Logger:         e.logger,
		MaxTokens:      e.cfg.Generation.MaxTokens,
		ThinkingBudget: e.cfg.Generation.ThinkingBudget,
	}
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// setup loads configuration and opens the store. console, when non-nil,
// also receives the logs; the TUI passes nil to keep the terminal clean.
// withProvider is false for commands that never talk to a model.
func setup(cmd *cobra.Command, console io.Writer, withProvider bool) (*env, error) {
	ctx := cmd.Context()
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{File: cfg.Log.File, Level: cfg.Log.Level, Console: console}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		logOpts.Level = lvl
	}
	if logOpts.File == "" {
		if p, err := logging.DefaultLogPath(); err == nil {
			logOpts.File = p
		}
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	e := &env{cfg: cfg, logger: logger, store: st}
	if cfg.CatalogPath != "" {
		e.catalog, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			e.Close()
			return nil, err
		}
	} else {
		e.catalog = catalog.Default()
	}
	e.progress = progress.NewRepository(st.KVRepo(), logger)

	if withProvider {
		e.provider, err = llm.NewProvider(ctx, cfg.LLM, st.EventRepo(), logger)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("LLM provider: %w", err)
		}
		logger.Info("provider ready",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", e.provider.ModelID()),
			zap.Bool("demo", cfg.Demo))
	}
	return e, nil
}

// runApp launches the terminal interface.
func runApp(cmd *cobra.Command) error {
	e, err := setup(cmd, nil, true)
	if err != nil {
		return err
	}
	defer e.Close()

	sess := tutor.NewSession(e.tutorDeps())
	defer sess.Close()

	err = app.Run(cmd.Context(), app.Options{
		Session:  sess,
		Catalog:  e.catalog,
		Progress: e.progress,
		Logger:   e.logger,
		Demo:     e.cfg.Demo,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
