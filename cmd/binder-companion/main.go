// Package main runs the binder companion daemon: the local JSON API and
// WebSocket event stream over the binder cache and its remote copy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ramonehamilton/binder-companion/internal/api"
	"github.com/ramonehamilton/binder-companion/internal/app"
	"github.com/ramonehamilton/binder-companion/internal/config"
	"github.com/ramonehamilton/binder-companion/internal/version"
)

var (
	configPath = flag.String("config", "", "Config file path (default: ~/.binder-companion/config.toml)")
	dataDir    = flag.String("data-dir", "", "Data directory for the cache and scratch files (default: ~/.binder-companion)")
	port       = flag.Int("port", 0, "API server port (overrides config)")
	remoteURL  = flag.String("remote-url", "", "Remote document server (overrides config)")
	remoteDir  = flag.String("remote-dir", "", "Shared remote directory (overrides config)")
	offline    = flag.Bool("offline", false, "Serve card details from the cache only")
	debugMode  = flag.Bool("debug-mode", false, "Enable verbose debug logging")
)

func main() {
	flag.Parse()

	fmt.Printf("Binder Companion %s\n", version.Version)
	fmt.Println("=====================")
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{DataDir: *dataDir, Offline: *offline})
	if err != nil {
		log.Fatalf("Failed to start services: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Error closing services: %v", err)
		}
	}()

	fmt.Printf("Database: %s\n", cfg.Storage.DatabasePath)
	switch {
	case cfg.Sync.RemoteURL != "":
		fmt.Printf("Remote:   %s\n", cfg.Sync.RemoteURL)
	case cfg.Sync.RemoteDir != "":
		fmt.Printf("Remote:   %s\n", cfg.Sync.RemoteDir)
	default:
		fmt.Println("Remote:   none (local only)")
	}

	started, err := a.StartBackups()
	if err != nil {
		log.Fatalf("Failed to schedule backups: %v", err)
	}
	if started {
		fmt.Printf("Backups:  every %s in %s\n", cfg.Storage.BackupInterval, cfg.Storage.BackupDir)
	}

	server, err := api.NewServer(&api.Config{
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.CORSOrigins,
	}, &api.Services{
		Editor:   a.Editor,
		Catalog:  a.Catalog,
		Metrics:  a.Metrics,
		Backups:  a.Backups,
		Settings: a.Storage.Settings(),
	})
	if err != nil {
		log.Fatalf("Failed to create API server: %v", err)
	}
	a.Events.Register(server.NewWebSocketObserver())

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	fmt.Println()
	fmt.Printf("API server running at http://localhost:%d\n", server.Port())
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	<-ctx.Done()

	fmt.Println()
	fmt.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	fmt.Println("Binder Companion stopped.")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if *port != 0 {
		cfg.API.Port = *port
	}
	if *remoteURL != "" {
		cfg.Sync.RemoteURL = *remoteURL
		cfg.Sync.RemoteDir = ""
	}
	if *remoteDir != "" {
		cfg.Sync.RemoteDir = *remoteDir
		cfg.Sync.RemoteURL = ""
	}
	if *debugMode {
		cfg.App.DebugMode = true
	}
	return cfg, nil
}
