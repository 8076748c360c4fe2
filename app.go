package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/deidaraiorek/sitesearch/internal/api"
	"github.com/deidaraiorek/sitesearch/internal/config"
	"github.com/deidaraiorek/sitesearch/internal/crawler"
	"github.com/deidaraiorek/sitesearch/internal/fetcher"
	"github.com/deidaraiorek/sitesearch/internal/indexer"
	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/scheduler"
	"github.com/deidaraiorek/sitesearch/internal/search"
	"github.com/deidaraiorek/sitesearch/internal/statistics"
	"github.com/deidaraiorek/sitesearch/internal/storage"
	"github.com/deidaraiorek/sitesearch/internal/textprocessor"
)

const shutdownTimeout = 15 * time.Second

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *storage.Database
	scheduler *scheduler.Scheduler
	search    *search.Engine
	stats     *statistics.Service
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newApp(c *cli.Context) (*app, error) {
	logger := newLogger(c.String("log-level"), c.String("log-format"))
	slog.SetDefault(logger)

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	logger.Info("opening database", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)
	db, err := storage.NewDatabase(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	processor := textprocessor.NewTextProcessor(nil)
	idx := indexer.NewIndexer(db, processor, logger)

	httpFetcher := fetcher.New(fetcher.Options{
		UserAgent: cfg.Crawler.UserAgent,
		Referrer:  cfg.Crawler.Referrer,
		Timeout:   cfg.Crawler.Timeout,
	})
	var renderer crawler.Renderer
	if cfg.Crawler.BrowserFallback {
		renderer = fetcher.NewBrowserFetcher(cfg.Crawler.UserAgent, cfg.Crawler.Timeout)
	}

	siteCrawler := crawler.New(crawler.Config{
		Parallelism: cfg.Crawler.Parallelism,
		DelayMin:    cfg.Crawler.DelayMin,
		DelayMax:    cfg.Crawler.DelayMax,
	}, httpFetcher, renderer, parser.New(cfg.Parser.Mode), idx, logger)

	sched := scheduler.New(cfg.Sites, cfg.Crawler.SiteWorkers, db, siteCrawler, idx, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		scheduler: sched,
		search:    search.NewEngine(cfg.Sites, cfg.Search, db, processor, logger),
		stats:     statistics.NewService(cfg.Sites, db, sched, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "err", err)
	}
}

// stopRun interrupts a full run still in progress on shutdown.
func (a *app) stopRun() {
	if !a.scheduler.IsRunning() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(ctx); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		a.logger.Error("failed to stop indexing", "err", err)
	}
}

func serveAction(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.ResetInterrupted(c.Context); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.NewServer(a.scheduler, a.search, a.stats, a.logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", srv.Addr, "sites", len(a.cfg.Sites))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-c.Context.Done():
		a.logger.Info("shutting down gracefully")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", "err", err)
	}
	a.stopRun()
	return nil
}

func indexAction(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.ResetInterrupted(c.Context); err != nil {
		return err
	}
	if err := a.scheduler.StartAll(c.Context); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		a.scheduler.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-c.Context.Done():
		a.logger.Info("interrupted, stopping indexing")
		a.stopRun()
		<-done
	}

	report, err := a.stats.Statistics(context.Background())
	if err != nil {
		return err
	}
	return printJSON(report)
}

func indexPageAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("index-page takes exactly one url", 2)
	}
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.IndexPage(c.Context, c.Args().First()); err != nil {
		return err
	}
	a.logger.Info("page indexed", "url", c.Args().First())
	return nil
}

func searchAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("search needs a query", 2)
	}
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.search.Search(c.Context, search.Query{
		Text:   strings.Join(c.Args().Slice(), " "),
		Site:   c.String("site"),
		Offset: c.Int("offset"),
		Limit:  c.Int("limit"),
	})
	var notFound *search.NotFoundError
	if errors.As(err, &notFound) {
		fmt.Fprintln(os.Stderr, notFound.Reason)
		return nil
	}
	if err != nil {
		return err
	}
	return printJSON(results)
}

func statsAction(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.stats.Statistics(c.Context)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
