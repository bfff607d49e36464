// Command offlineproxy runs the offline caching engine as a local reverse
// proxy: every request is routed through the caching agent, with the real
// origin behind it. Kill the origin and the proxy keeps answering from cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thomassophiea/aura-offline/agent"
	"github.com/thomassophiea/aura-offline/coordinator"
	"github.com/thomassophiea/aura-offline/health"
	"github.com/thomassophiea/aura-offline/observe"
	"github.com/thomassophiea/aura-offline/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "offlineproxy:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen          = flag.String("listen", ":8080", "address to serve on")
		origin          = flag.String("origin", "http://127.0.0.1:3000", "origin server URL")
		version         = flag.String("version", "dev", "cache generation version")
		scope           = flag.String("scope", coordinator.DefaultScope, "registration scope")
		memcached       = flag.String("memcached", "", "memcached address; empty uses in-memory storage")
		fetchTimeout    = flag.Duration("fetch-timeout", 10*time.Second, "per-request origin timeout")
		logLevel        = flag.String("log-level", "info", "log level (debug|info|warn|error)")
		metricsExporter = flag.String("metrics-exporter", "none", "metrics exporter (otlp|prometheus|stdout|none)")
		tracingExporter = flag.String("tracing-exporter", "none", "tracing exporter (otlp|stdout|none)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	originURL, err := url.Parse(*origin)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "offlineproxy",
		Version:     *version,
		Tracing: observe.TracingConfig{
			Enabled:   *tracingExporter != "none",
			Exporter:  *tracingExporter,
			SamplePct: 1.0,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  *metricsExporter != "none",
			Exporter: *metricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   *logLevel,
		},
	})
	if err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(sctx)
	}()

	logger := obs.Logger()
	tracer, metrics, err := observe.Instrumentation(obs)
	if err != nil {
		return fmt.Errorf("instrumentation: %w", err)
	}

	var storage store.Storage = store.NewMemoryStorage()
	if *memcached != "" {
		storage = store.NewMemcacheStorage(*memcached)
		logger.Info(ctx, "using memcached storage", observe.Field{Key: "addr", Value: *memcached})
	}

	fetch := agent.NewHTTPFetcher(&http.Client{}, originURL).WithTimeout(*fetchTimeout)

	rt, err := agent.NewRuntime(agent.RuntimeConfig{
		NewAgent: func(ctx context.Context) (*agent.Agent, error) {
			return agent.New(agent.Config{
				Version: *version,
				Storage: storage,
				Fetcher: fetch,
				Router:  agent.RouterConfig{Origin: *origin},
				Logger:  logger,
				Metrics: metrics,
				Tracer:  tracer,
			})
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	coord, err := coordinator.New(coordinator.Config{
		Registrar: rt,
		Reloader: coordinator.ReloaderFunc(func(ctx context.Context) error {
			logger.Info(ctx, "page reload requested by upgrade")
			return nil
		}),
		Scope:  *scope,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	go func() {
		if err := coord.Run(ctx); err != nil {
			logger.Error(ctx, "coordinator stopped", observe.Field{Key: "error", Value: err.Error()})
		}
	}()

	agg := health.NewAggregator()
	agg.Register(health.NewOriginChecker(fetch, "/"))
	agg.Register(health.NewStorageChecker(storage, store.NewGeneration(*version)))
	agg.Register(health.NewLifecycleChecker(rt, *scope))

	r := mux.NewRouter()
	health.RegisterHandlers(r, agg)
	if *metricsExporter == "prometheus" {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	r.PathPrefix("/").Handler(proxyHandler(rt, *scope, fetch, logger))

	srv := &http.Server{
		Addr:              *listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "serving",
			observe.Field{Key: "listen", Value: *listen},
			observe.Field{Key: "origin", Value: *origin},
			observe.Field{Key: "version", Value: *version},
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// proxyHandler routes requests through the scope's controller, falling back
// to a direct origin fetch while no controller is active.
func proxyHandler(rt *agent.Runtime, scope string, fetch agent.Fetcher, logger observe.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := agent.ParseRequest(r.Method, r.URL.RequestURI())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap, err := rt.HandleFetch(r.Context(), scope, req)
		if errors.Is(err, agent.ErrScopeNotRegistered) || errors.Is(err, agent.ErrNotControlled) {
			snap, err = fetch(r.Context(), req)
		}
		if err != nil {
			logger.Warn(r.Context(), "request failed",
				observe.Field{Key: "identity", Value: req.Identity().Key()},
				observe.Field{Key: "error", Value: err.Error()},
			)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}

		writeSnapshot(w, snap)
	})
}

func writeSnapshot(w http.ResponseWriter, snap store.Snapshot) {
	for k, vs := range snap.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := snap.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(snap.Body)
}
