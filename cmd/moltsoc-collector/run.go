package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/securityjoes/MoltSoc/internal/api"
	"github.com/securityjoes/MoltSoc/internal/config"
	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/engine/rules"
	"github.com/securityjoes/MoltSoc/internal/event"
	"github.com/securityjoes/MoltSoc/internal/identity"
	"github.com/securityjoes/MoltSoc/internal/storage"
	"github.com/securityjoes/MoltSoc/internal/watcher"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	connectTimeout  = 10 * time.Second
)

// runCollector wires the writer, engine, watchers and HTTP server and runs
// them until ctx is cancelled.
func runCollector(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	out, err := storage.OpenLog(cfg.Out)
	if err != nil {
		return err
	}
	writer := storage.NewWriter(out, cfg.MaxEvents, logger)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Warn("event log close failed", zap.Error(err))
		}
	}()

	sink := openSink(ctx, cfg.ClickHouseDSN, logger)
	detach := writer.Attach(sink)
	defer func() {
		detach()
		sink.Close()
	}()

	botID := identity.New(cfg.StateDir, logger).GetOrCreateBotID(cfg.BotID)

	policy := engine.NewPolicy(cfg.DisabledRules)
	if policy.Disabled() > 0 {
		logger.Info("alert rules disabled", zap.Strings("rules", cfg.DisabledRules))
	}
	eng := engine.New(rules.Line(), rules.Status(), logger, engine.WithPolicy(policy))
	pipeline := watcher.NewPipeline(writer, eng, cfg.Redact, botID)

	started := event.New(event.TypeConfigChange, event.SeverityInfo, "MoltSOC collector started")
	started.Details["source"] = cfg.Source
	started.Details["redact"] = cfg.Redact
	started.Details["bot_id"] = botID
	pipeline.Emit(started)

	g, gctx := errgroup.WithContext(ctx)
	runner := watcher.ExecRunner{Binary: cfg.OpenClawBin}

	switch cfg.Source {
	case config.SourceLogs:
		target := watcher.ResolveLogTarget(gctx, cfg.LogPath, runner)
		fw := watcher.NewFileWatcher(target, pipeline.ProcessLine, logger)
		if err := fw.Start(); err != nil {
			logger.Error("log watcher failed to start", zap.String("target", target), zap.Error(err))
			ev := event.New(event.TypeError, event.SeverityMedium, "Log watcher failed to start")
			ev.Details["target"] = target
			ev.Details["error"] = err.Error()
			pipeline.Emit(ev)
		} else {
			g.Go(func() error { return fw.Run(gctx) })
		}
	case config.SourceCLI:
		cw := watcher.NewCLIWatcher(runner, pipeline, cfg.PollInterval, logger)
		g.Go(func() error { return cw.Run(gctx) })
	default:
		logger.Error("unknown source", zap.String("source", cfg.Source))
		ev := event.New(event.TypeError, event.SeverityMedium, "Unknown source: "+cfg.Source)
		ev.Details["source"] = cfg.Source
		pipeline.Emit(ev)
	}

	g.Go(func() error { return watcher.RunHeartbeat(gctx, pipeline, cfg.HeartbeatInterval) })

	if cfg.Serve {
		deps := &api.Dependencies{Events: writer, Logger: logger}
		if ch, ok := sink.(*storage.ClickHouseSink); ok {
			deps.History = ch
		}
		g.Go(func() error { return serveHTTP(gctx, cfg.HTTPAddr, deps, logger) })
	}

	return g.Wait()
}

// openSink returns the ClickHouse mirror when dsn is set and reachable,
// otherwise the log sink.
func openSink(ctx context.Context, dsn string, logger *zap.Logger) storage.Sink {
	if dsn == "" {
		logger.Info("no clickhouse dsn set, using log sink")
		return storage.NewLogSink(logger)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	sink, err := storage.NewClickHouseSink(connectCtx, dsn, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log sink", zap.Error(err))
		return storage.NewLogSink(logger)
	}
	logger.Info("clickhouse sink connected")
	return sink
}

// serveHTTP runs the query/stream API until ctx is done, then shuts it down
// gracefully. Request contexts derive from ctx so open streams end too.
func serveHTTP(ctx context.Context, addr string, deps *api.Dependencies, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	return nil
}
