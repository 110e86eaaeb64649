package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Qolorerr/Athena/config"
	"github.com/Qolorerr/Athena/internal/aggregator"
	"github.com/Qolorerr/Athena/internal/gateway"
	"github.com/Qolorerr/Athena/internal/metrics"
	"github.com/Qolorerr/Athena/internal/model"
	"github.com/Qolorerr/Athena/internal/processor"
	"github.com/Qolorerr/Athena/internal/scheduler"
	redisstore "github.com/Qolorerr/Athena/internal/store/redis"
	sqlitestore "github.com/Qolorerr/Athena/internal/store/sqlite"
	"github.com/Qolorerr/Athena/internal/storekeeper"
	"github.com/Qolorerr/Athena/internal/telegram"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[athena] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[athena] config: %v", err)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.RedisAddr != "")
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[athena] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.CheckSQLite(ctx, store.DB())
	log.Println("[athena] sqlite store ready")

	// ---- Aggregator registry & store-keeper ----
	registry := aggregator.NewRegistry(aggregator.Config{
		MOEXLogin:    cfg.MOEXLogin,
		MOEXPassword: cfg.MOEXPassword,
	})

	keeper := storekeeper.New(store, &instrumentedRegistry{inner: registry, prom: prom})
	keeper.OnFetch = func(agg model.Aggregator, hit bool) {
		result := "miss"
		if hit {
			result = "hit"
		}
		prom.CacheReads.WithLabelValues(result).Inc()
	}

	// ---- Optional side channels ----
	var sinks []model.EventSink

	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		publisher, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[athena] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			sinks = append(sinks, publisher)
			defer publisher.Close()
		}
	}

	var gatewaySrv *http.Server
	if cfg.GatewayAddr != "" {
		hub := gateway.NewHub()
		sinks = append(sinks, hub)

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		gatewaySrv = &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
		go func() {
			log.Printf("[athena] gateway listening on %s", cfg.GatewayAddr)
			if err := gatewaySrv.ListenAndServe(); err != http.ErrServerClosed {
				log.Printf("[athena] gateway error: %v", err)
			}
		}()
	}

	// ---- Liveness checks ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, store.DB(), publisher.Client(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, store.DB(), nil, 10*time.Second)
	}

	// ---- Telegram bot & condition processor ----
	bot := telegram.New(cfg.TelegramToken, nil)

	proc, err := processor.New(store, keeper, bot, sinks...)
	if err != nil {
		log.Fatalf("[athena] processor init failed: %v", err)
	}
	proc.OnEvalFailure = func() { prom.EvalFailures.Inc() }
	proc.OnSent = func(count int) { prom.NotificationsSent.Add(float64(count)) }
	proc.OnTickDone = func(d time.Duration) {
		prom.TickDur.Observe(d.Seconds())
		health.SetLastTickAt(time.Now())
	}
	proc.OnRules = func(n int) { prom.ActiveRules.Set(float64(n)) }
	bot.SetRules(proc)

	// ---- Notification sweep ----
	sched := scheduler.New()
	if err := sched.Schedule("notifications", cfg.NotificationInterval, func() {
		proc.Tick(ctx)
	}); err != nil {
		log.Fatalf("[athena] schedule failed: %v", err)
	}
	sched.Start()
	log.Printf("[athena] notification sweep every %s", cfg.NotificationInterval)

	// ---- Bot update loop ----
	go func() {
		if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[athena] bot stopped: %v", err)
		}
	}()

	log.Println("[athena] ready")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[athena] shutdown signal received, cleaning up...")
	cancel()

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	if gatewaySrv != nil {
		gatewaySrv.Shutdown(shutdownCtx)
	}

	log.Println("[athena] shutdown complete.")
}

// instrumentedRegistry wraps adapter downloads with fetch metrics.
type instrumentedRegistry struct {
	inner storekeeper.Registry
	prom  *metrics.Metrics
}

func (r *instrumentedRegistry) Client(a model.Aggregator) (model.Downloader, bool) {
	d, ok := r.inner.Client(a)
	if !ok {
		return nil, false
	}
	return &instrumentedDownloader{inner: d, agg: a, prom: r.prom}, true
}

type instrumentedDownloader struct {
	inner model.Downloader
	agg   model.Aggregator
	prom  *metrics.Metrics
}

func (d *instrumentedDownloader) Download(ctx context.Context, symbol string, start, end time.Time, span model.TimeSpan, hints model.Hints) ([]model.Candle, error) {
	began := time.Now()
	rows, err := d.inner.Download(ctx, symbol, start, end, span, hints)
	d.prom.FetchDur.Observe(time.Since(began).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	d.prom.FetchesTotal.WithLabelValues(string(d.agg), result).Inc()
	return rows, err
}
