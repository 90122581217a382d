package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/adapters/feed/espn"
	"github.com/okian/stadium/internal/adapters/feed/replay"
	"github.com/okian/stadium/internal/adapters/history"
	"github.com/okian/stadium/internal/adapters/http/api"
	"github.com/okian/stadium/internal/adapters/http/swagger"
	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/adapters/sink/breaker"
	"github.com/okian/stadium/internal/adapters/sink/govee"
	"github.com/okian/stadium/internal/adapters/sink/logsink"
	"github.com/okian/stadium/internal/adapters/sink/wiz"
	"github.com/okian/stadium/internal/adapters/ws/hub"
	service "github.com/okian/stadium/internal/app"
	"github.com/okian/stadium/internal/config"
	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/teams"
	"github.com/okian/stadium/internal/reconnect"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

const (
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "stadium exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.LogFormat == string(logger.FormatJSON) {
		if err := logger.Init(logger.WithFormat(logger.FormatJSON)); err != nil {
			return err
		}
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(metricsOptions(cfg.Metrics)...)

	palettes := teams.Default()
	if cfg.TeamsFile != "" {
		t, err := teams.LoadFile(cfg.TeamsFile)
		if err != nil {
			return err
		}
		palettes = t
	}

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithLogger(log.Named("stadium")),
		service.WithSource(src),
		service.WithSinks(buildSinks(cfg)...),
		service.WithPalettes(palettes),
		service.WithPollInterval(cfg.Feed.PollInterval),
		service.WithUntrackOnFinal(cfg.Feed.UntrackOnFinal),
		service.WithFailureThreshold(cfg.Health.FailureThreshold),
		service.WithHealthInterval(cfg.Health.Interval),
		service.WithBackoff(
			reconnect.WithBase(cfg.Backoff.Base),
			reconnect.WithMax(cfg.Backoff.Max),
			reconnect.WithJitter(cfg.Backoff.Jitter),
		),
		service.WithDispatchOptions(
			dispatch.WithGrace(cfg.Dispatch.Grace),
			dispatch.WithWindow(cfg.Dispatch.Window),
			dispatch.WithLaneCapacity(cfg.Dispatch.LaneCapacity),
		),
		service.WithHubOptions(
			hub.WithPingInterval(cfg.Hub.PingInterval),
			hub.WithWatchdog(cfg.Hub.Watchdog),
			hub.WithQueueSize(cfg.Hub.QueueSize),
			hub.WithAllowedOrigins(cfg.Hub.AllowedOrigins...),
		),
	}

	var rec *history.Recorder
	if cfg.History.Path != "" {
		rec, err = history.Open(cfg.History.Path, history.WithQueueSize(cfg.History.QueueSize))
		if err != nil {
			return err
		}
		rec.Start(ctx)
		opts = append(opts, service.WithRecorder(rec))
	}

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}

	for _, ref := range bootContests(cfg, src) {
		if err := svc.Track(ctx, ref); err != nil {
			log.Warn(ctx, "contest not tracked", logger.String("contest", ref.ContestID), logger.Error(err))
		}
	}

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	apiServer := api.NewServer(svc, svc, svc.Hub(),
		api.WithTriggerRate(cfg.Trigger.Rate, cfg.Trigger.Burst),
		api.WithLogger(log.Named("api")),
	)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	errs := []error{runErr}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if rec != nil {
		if err := rec.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}

	log.Info(ctx, "server stopped")
	return errors.Join(errs...)
}

func metricsOptions(c config.MetricsConfig) []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(c.Namespace),
		metrics.WithSubsystem(c.Subsystem),
		metrics.WithHistogramBuckets(c.Buckets),
		metrics.WithConstLabels(c.Labels),
	}
}

func buildSource(cfg *config.Config) (feed.Source, error) {
	switch cfg.Feed.Source {
	case config.SourceReplay:
		return replay.Load(cfg.Feed.ReplayPath)
	default:
		opts := []espn.Option{espn.WithLogger(logger.Get().Named("espn"))}
		if cfg.Feed.BaseURL != "" {
			opts = append(opts, espn.WithBaseURL(cfg.Feed.BaseURL))
		}
		return espn.New(opts...), nil
	}
}

// buildSinks wraps every device sink in a breaker. With no device configured,
// or in dry-run, a logging sink stands in.
func buildSinks(cfg *config.Config) []sink.Sink {
	sc := cfg.Sinks
	var out []sink.Sink
	if !sc.DryRun {
		if len(sc.Wiz.Bulbs) > 0 {
			out = append(out, wiz.New(sc.Wiz.Bulbs, wiz.WithPort(sc.Wiz.Port)))
		}
		if sc.Govee.APIKey != "" {
			out = append(out, govee.New(sc.Govee.APIKey, sc.Govee.Devices,
				govee.WithBaseURL(sc.Govee.BaseURL),
				govee.WithRateLimit(sc.Govee.Rate, sc.Govee.Burst),
			))
		}
	}
	if len(out) == 0 {
		out = append(out, logsink.New())
	}

	wrapped := make([]sink.Sink, 0, len(out))
	for _, s := range out {
		wrapped = append(wrapped, breaker.Wrap(s,
			breaker.WithFailures(sc.Breaker.Failures),
			breaker.WithOpenTimeout(sc.Breaker.OpenTimeout),
		))
	}
	return wrapped
}

// bootContests returns the configured contests, or every scripted contest of
// a replay source when none are configured.
func bootContests(cfg *config.Config, src feed.Source) []feed.Ref {
	refs := cfg.AllContests()
	if len(refs) > 0 {
		return refs
	}
	if r, ok := src.(*replay.Source); ok {
		return r.Contests()
	}
	return nil
}

func startSystemMetricsUpdater(ctx context.Context) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		logger.Get().Warn(ctx, "process stats unavailable", logger.Error(err))
	}

	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics(ctx, proc)
		}
	}
}

func updateSystemMetrics(ctx context.Context, proc *process.Process) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}

	if proc == nil {
		return
	}
	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return
	}
	metrics.UpdateProcessStats(cpu, mem.RSS)
}
