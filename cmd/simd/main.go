// Command simd runs the stock challenge simulation daemon: the tick
// scheduler, the stale-state reaper, the leaderboard recalc dispatcher, and
// the admin HTTP server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"

	"stockquest/internal/api"
	"stockquest/internal/bus"
	"stockquest/internal/obs"
	"stockquest/internal/ops"
	"stockquest/internal/scheduler"
	"stockquest/internal/simstate"
	"stockquest/internal/storage"
	"stockquest/internal/valuation"
	"stockquest/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config/simd.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 30*time.Second, "Config reload interval (0=disable)")
	adminAddr := flag.String("admin-addr", "", "Admin listen address (overrides config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *adminAddr != "" {
		loaded.AdminAddr = *adminAddr
	}

	if loaded.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: appName(loaded.Profiling.AppName),
			ServerAddress:   loaded.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	client, err := conn.New(loaded.Database)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer client.Close()
	if err := client.Ping(ctx); err != nil {
		log.Fatalf("postgres ping failed: %v", err)
	}

	db := client.DB()
	sessions := storage.NewSessionRepo(db)
	challenges := storage.NewChallengeRepo(db)
	portfolio := storage.NewPortfolioRepo(db)
	candles := storage.NewCandleRepo(db)
	leaderboard := storage.NewLeaderboardRepo(db)

	metrics := obs.NewMetrics()
	valuer := valuation.NewEngine(portfolio, candles, loaded.Valuation, metrics)
	dispatcher := bus.NewDispatcher(loaded.RecalcQueueSize, leaderboard, metrics)
	sched := scheduler.New(loaded.Scheduler, sessions, challenges, valuer,
		simstate.NewMemoryStore(), dispatcher, metrics)

	admin := &http.Server{
		Addr:              loaded.AdminAddr,
		Handler:           api.New(sched, valuer, challenges, metrics).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.RunReaper(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.RunStatsLogger(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		log.Printf("admin server listening on %s", loaded.AdminAddr)
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("admin server failed: %v", err)
			stop()
		}
	}()

	if *configReload > 0 {
		go watchConfig(ctx, *configPath, *configReload, valuer.UpdateConfig)
	}

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin shutdown failed: %v", err)
	}
	dispatcher.Close()
	wg.Wait()
}

func appName(name string) string {
	if name != "" {
		return name
	}
	return "stockquest-simd"
}

// watchConfig polls the config file and pushes valuation changes into the
// running engine. Scheduler intervals are fixed at startup; only the price
// resolution settings reload.
func watchConfig(ctx context.Context, path string, interval time.Duration, update func(valuation.Config)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				log.Printf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			cfg, err := ops.LoadValuation(path)
			if err != nil {
				log.Printf("config reload failed: %v", err)
				continue
			}
			update(cfg)
			lastMod = info.ModTime()
			log.Printf("valuation config reloaded: %s", path)
		}
	}
}
