package cmd

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

	"deskmemo/internal/analyzer"
	"deskmemo/internal/auth"
	deskhttp "deskmemo/internal/http"
	"deskmemo/internal/ingest"
	"deskmemo/internal/logger"
	"deskmemo/internal/pipeline"
	"deskmemo/internal/report"
	"deskmemo/internal/scheduler"
	"deskmemo/internal/search"
	"deskmemo/internal/storage"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the analysis pipeline",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	defer logger.Close()

	loc, err := cfg.Report.Location()
	if err != nil {
		return err
	}
	files, err := storage.NewFileStore(cfg.Storage.ImagePath, loc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, closer := openIndex(ctx, cfg)
	if closer != nil {
		defer closer.Close()
	}

	ai, err := newAnalyzer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	analyzeTimeout, _ := cfg.Analyzer.GetTimeout()
	reconcileInterval, err := cfg.Pipeline.GetReconcileInterval()
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Deps{
		Store:    st,
		Analyzer: ai,
		Index:    index,
		Refs:     analyzer.ImageRefs{BaseURL: cfg.Analyzer.ImageBaseURL},
		Files:    files,
	}, pipeline.Config{
		Options: pipeline.Options{
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			ErrorMaxLength: cfg.Pipeline.ErrorMaxLength,
			AnalyzeTimeout: analyzeTimeout,
		},
		ReconcileInterval: reconcileInterval,
	})

	gate := ingest.NewGate(st, p, cfg.Pipeline.SimilarityThreshold)
	ingester := ingest.NewService(files, gate)

	agg := report.NewAggregator(st, ai, report.Options{
		Location:       loc,
		MinutesPerItem: cfg.Report.MinutesPerItem,
		SampleSize:     cfg.Report.SampleSize,
	})

	tokenTTL, err := time.ParseDuration(cfg.Server.TokenTTL)
	if err != nil {
		return fmt.Errorf("invalid server.token_ttl: %w", err)
	}
	authenticator := auth.NewAuthenticator(cfg.Server.Password, auth.NewMemoryTokenStore(tokenTTL))
	if !authenticator.Enabled() {
		logger.GetLogger().Warn("server.password is empty, API authentication disabled")
	}

	router := deskhttp.NewRouter(&deskhttp.Deps{
		Store:     st,
		Files:     files,
		Auth:      authenticator,
		Ingester:  ingester,
		Searcher:  search.NewRanker(st, index),
		Reports:   agg,
		Failures:  p.Manual,
		Reconcile: p.Reconciler,
		Queue:     p.Queue,
		Location:  loc,

		PublicImages: cfg.Analyzer.ImageBaseURL != "",
	})
	if cfg.Analyzer.ImageBaseURL != "" && authenticator.Enabled() {
		logger.GetLogger().Warn("analyzer.image_base_url is set, images under /files are served without authentication")
	}

	hourly, err := scheduler.NewCronScheduler(cfg.Report.HourlyCron, loc)
	if err != nil {
		return fmt.Errorf("failed to create hourly report scheduler: %w", err)
	}
	daily, err := scheduler.NewCronScheduler(cfg.Report.DailyCron, loc)
	if err != nil {
		return fmt.Errorf("failed to create daily report scheduler: %w", err)
	}
	if err := hourly.Start(func() error {
		_, err := agg.GenerateHourly(ctx, time.Now())
		return err
	}); err != nil {
		return fmt.Errorf("failed to start hourly report scheduler: %w", err)
	}
	defer hourly.Stop()
	if err := daily.Start(func() error {
		_, err := agg.GenerateDaily(ctx, time.Now())
		return err
	}); err != nil {
		return fmt.Errorf("failed to start daily report scheduler: %w", err)
	}
	defer daily.Stop()

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	if cfg.Storage.InboxPath != "" {
		w := ingest.NewWatcher(cfg.Storage.InboxPath, ingester, ingest.DefaultSettleDelay)
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		logger.GetLogger().Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.GetLogger().Info("Stopping...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.GetLogger().Infof("Deskmemo started (hourly report: %s, next daily report: %s). Press Ctrl+C to stop.",
		cfg.Report.HourlyCron, daily.Next().Format(time.RFC3339))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.GetLogger().Info("Stopped.")
	return nil
}
