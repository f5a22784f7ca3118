// Command loom runs the Anthropic Messages API reverse proxy: it rewrites
// auto-compaction scaffolding, scrubs hook noise, assembles an
// identity-flavored prompt, forwards to the upstream API, and streams the
// response back — all selectable per-request via the x-loom-pattern
// header.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pondside-labs/loom/pkg/compact"
	"github.com/pondside-labs/loom/pkg/config"
	"github.com/pondside-labs/loom/pkg/dynctx"
	"github.com/pondside-labs/loom/pkg/hud"
	"github.com/pondside-labs/loom/pkg/identity"
	"github.com/pondside-labs/loom/pkg/memorables"
	"github.com/pondside-labs/loom/pkg/pattern"
	"github.com/pondside-labs/loom/pkg/proxy"
	"github.com/pondside-labs/loom/pkg/quota"
	"github.com/pondside-labs/loom/pkg/server"
	"github.com/pondside-labs/loom/pkg/summaries"
	"github.com/pondside-labs/loom/pkg/telemetry"
	"github.com/pondside-labs/loom/pkg/tokencount"
	"github.com/pondside-labs/loom/pkg/types"
	"github.com/pondside-labs/loom/pkg/watcher"
)

func main() {
	cfg := config.Load(os.Args[1:])
	logger := telemetry.NewLogger(slog.LevelInfo)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = summaries.Open(cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to open postgres", "err", err)
			os.Exit(1)
		}
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	ident, err := identity.Load(startCtx, identity.Config{
		RepoPath:    cfg.SoulRepoPath,
		SoulRef:     cfg.SoulRef,
		SoulPath:    cfg.SoulPath,
		CompactRef:  cfg.CompactRef,
		CompactPath: cfg.CompactPath,
		Name:        cfg.IdentityName,
	})
	if err != nil {
		if errors.Is(err, identity.ErrFatalInit) {
			logger.Error("fatal: could not load identity document at startup", "err", err)
			os.Exit(1)
		}
		logger.Error("identity load failed", "err", err)
		os.Exit(1)
	}

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	propagator := propagation.TraceContext{}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewRequestMetrics(registry)

	patterns := pattern.NewRegistry(logger)
	patterns.Register("passthrough", pattern.Passthrough{})

	compactCfg := compact.Config{
		SummarizerPrompt:        ident.CompactDoc,
		CustomCompactPrompt:     ident.CompactDoc,
		ContinuationReplacement: "This session continues a prior conversation, summarized above. Continue with the last task you were asked to work on.",
	}

	alphaCtxLoader := &dynctx.Loader{Root: cfg.ContextRoot, FileName: cfg.ContextFile}
	iotaCtxLoader := &dynctx.Loader{Root: cfg.IotaRoot, FileName: cfg.IotaFile}

	tokenStasher := &tokencount.Stasher{
		APIKey:       cfg.AnthropicAPIKey,
		APIURL:       cfg.AnthropicAPIURL,
		AnthropicVer: cfg.AnthropicVer,
		Redis:        rdb,
		Logger:       logger,
	}

	alpha := pattern.NewAlpha(pattern.AlphaConfig{
		Identity:     ident,
		HUD:          &hud.Fetcher{Client: rdb},
		Summaries:    &summaries.Fetcher{DB: db},
		DynCtx:       alphaCtxLoader,
		Memorables:   &memorables.Reader{Client: rdb},
		CompactCfg:   compactCfg,
		CacheControl: cfg.CacheControlOn,
		OnSessionKnown: func(body *types.RequestBody, sessionID string) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := tokenStasher.CountAndStash(ctx, body, sessionID); err != nil {
					logger.Warn("token count and stash failed", "session_id", sessionID, "err", err)
				}
			}()
		},
	})
	patterns.Register("alpha", alpha)

	patterns.Register("iota", pattern.NewIota(pattern.IotaConfig{
		DynCtx:     iotaCtxLoader,
		CompactCfg: compactCfg,
	}))

	watchers := watcher.NewRegistry(rdb, cfg.WatcherIdleTimeout, logger)

	srv := &server.Server{
		Patterns:       patterns,
		Proxy:          proxy.NewEngine(cfg.UpstreamURL),
		Quota:          quota.NewLogger(rdb, registry),
		Metrics:        metrics,
		Logger:         logger,
		Tracer:         server.NewTracer(),
		Propagator:     propagator,
		Turns:          server.NewTurnManager(),
		Watchers:       watchers,
		DataDir:        cfg.DataDir,
		IdentityCommit: ident.CommitHash,
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}
