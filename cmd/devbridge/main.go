package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/devbridge/internal/cdp"
	"github.com/GriffinCanCode/devbridge/internal/content"
	"github.com/GriffinCanCode/devbridge/internal/events"
	"github.com/GriffinCanCode/devbridge/internal/fetcher"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/server"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/devbridge/internal/launcher"
	"github.com/GriffinCanCode/devbridge/internal/session"
	"github.com/GriffinCanCode/devbridge/internal/transport"
)

func main() {
	navigate := flag.String("url", "", "URL to open in the first page after connecting")
	connect := flag.String("connect", "", "Existing browser WebSocket URL; skips launching")
	fetch := flag.Bool("fetch", false, "Download the configured browser revision before launching")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *dev {
		cfg.Logging.Development = true
	}
	if *fetch {
		cfg.Fetcher.Enabled = true
	}

	logger := newLogger(cfg.Logging)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *connect, *navigate); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("devbridge failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *logging.Logger {
	logger, err := logging.New(logging.FromConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log config, using defaults: %v\n", err)
		return logging.NewDefault()
	}
	return logger
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, connectURL, navigateURL string) error {
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("devbridge", logger)
	defer tracer.Close()

	if cfg.Fetcher.Enabled && connectURL == "" && cfg.Browser.ExecutablePath == "" {
		exe, err := install(ctx, cfg.Fetcher, logger, metrics)
		if err != nil {
			return err
		}
		cfg.Browser.ExecutablePath = exe
	}

	wsOpts := transport.DefaultOptions()
	wsOpts.Logger = logger
	wsOpts.Metrics = metrics
	ws := transport.NewWebSocket(wsOpts)

	client := cdp.New(ws, cdp.Options{
		CallTimeout:     cfg.Bridge.CallTimeout,
		ReclaimAfter:    cfg.Bridge.ReclaimAfter,
		ReconnectWindow: cfg.Bridge.ReconnectWindow,
		ReconnectPoll:   cfg.Bridge.ReconnectPoll,
		Logger:          logger,
		Metrics:         metrics,
		Tracer:          tracer,
	})
	defer client.Close()

	if connectURL != "" {
		if err := client.Connect(ctx, connectURL); err != nil {
			return fmt.Errorf("connect %s: %w", connectURL, err)
		}
		logger.Info("connected to browser", zap.String("url", connectURL))
	} else {
		opts := launcher.OptionsFromConfig(cfg.Browser)
		opts.Logger = logger
		opts.Metrics = metrics
		browser, err := launcher.New(opts).LaunchAndConnect(ctx, client)
		if err != nil {
			return err
		}
		defer func() {
			if err := browser.Close(); err != nil {
				logger.Warn("failed to stop browser", zap.Error(err))
			}
		}()
		logger.Info("browser ready",
			zap.String("url", browser.URL),
			zap.Int("pid", browser.Pid()),
		)
	}

	version, err := cdp.CheckVersion(ctx, client, cfg.Bridge.MinVersion)
	if err != nil {
		return err
	}
	logger.Info("browser version", zap.String("version", version.String()))

	if navigateURL != "" {
		if err := open(ctx, client, logger, navigateURL); err != nil {
			return err
		}
	}

	if cfg.Diagnostics.Enabled {
		srv := server.New(client, server.Options{
			Addr: cfg.Diagnostics.Addr,
			RateLimit: server.RateLimitConfig{
				RequestsPerSecond: cfg.Diagnostics.RequestsPerSecond,
				Burst:             cfg.Diagnostics.Burst,
			},
			Development: cfg.Logging.Development,
			Logger:      logger,
			Metrics:     metrics,
			Tracer:      tracer,
		})
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error("diagnostics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("bridge running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func install(ctx context.Context, cfg config.FetcherConfig, logger *logging.Logger, metrics *monitoring.Metrics) (string, error) {
	rev, err := fetcher.RevisionFromConfig(cfg)
	if err != nil {
		return "", err
	}
	opts := fetcher.DefaultOptions()
	opts.Logger = logger
	opts.Metrics = metrics
	exe, err := fetcher.New(opts).EnsureInstalled(ctx, rev)
	if err != nil {
		return "", fmt.Errorf("install browser %s: %w", rev.Revision, err)
	}
	return exe, nil
}

// open attaches to the first page and navigates it, logging the loaded title.
func open(ctx context.Context, client *cdp.Client, logger *logging.Logger, url string) error {
	target, err := client.FirstPage(ctx)
	if err != nil {
		return err
	}
	sessionID, err := client.Attach(ctx, target.TargetID)
	if err != nil {
		return err
	}
	pageCtx := session.WithID(ctx, sessionID)

	page := client.MustDomain("Page")
	if _, err := page.Call(pageCtx, "enable"); err != nil {
		return err
	}
	loaded := make(chan struct{})
	if _, err := page.OnceInSession("loadEventFired", sessionID, events.ListenerFunc(func(*events.Event) error {
		close(loaded)
		return nil
	})); err != nil {
		return err
	}

	res, err := client.Navigate(pageCtx, url)
	if err != nil {
		return err
	}
	logger.Info("navigated", zap.String("url", url), zap.String("frame_id", res.FrameID))

	select {
	case <-loaded:
	case <-ctx.Done():
		return ctx.Err()
	}

	doc, err := content.Document(pageCtx, client)
	if err != nil {
		logger.Warn("failed to read page", zap.Error(err))
		return nil
	}
	logger.Info("page loaded",
		zap.String("title", doc.Title()),
		zap.Int("links", len(doc.Links())),
	)
	return nil
}
