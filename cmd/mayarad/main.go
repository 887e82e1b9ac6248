// Command mayarad is the radar gateway's process entrypoint: it loads
// configuration, builds an Engine, and serves the external HTTP/WebSocket
// API until SIGINT/SIGTERM, shutting down within the engine's bounded
// shutdown window.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mayara-project/mayara/internal/config"
	"github.com/mayara-project/mayara/internal/engine"
	"github.com/mayara-project/mayara/internal/monitoring"
	"github.com/mayara-project/mayara/internal/settings"
)

var (
	configPath   = flag.String("config", "", "Path to a JSON configuration file (optional)")
	settingsPath = flag.String("settings-db", "mayara-settings.db", "Path to the installation-settings sqlite database")
	verbose      = flag.Bool("v", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *verbose {
		cfg.Verbosity = config.VerbosityDebug
	}

	db, err := settings.Open(*settingsPath)
	if err != nil {
		log.Fatalf("failed to open installation settings database: %v", err)
	}
	defer db.Close()
	sink := settings.NewSink(db)

	eng := engine.New(cfg, sink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	monitoring.Logf("mayarad listening on :%d, brands=%v", cfg.HTTPPort, cfg.Brands)
	<-ctx.Done()
	monitoring.Logf("shutdown signal received, stopping")
	wg.Wait()
}
