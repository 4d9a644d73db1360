// ABOUTME: Entry point for the handoff-gateway server
// ABOUTME: Routes university chat-support conversations between customers, the bot, and agents

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuschat/handoff-gateway/internal/config"
	"github.com/campuschat/handoff-gateway/internal/conversation"
	"github.com/campuschat/handoff-gateway/internal/handoff"
	"github.com/campuschat/handoff-gateway/internal/metrics"
	"github.com/campuschat/handoff-gateway/internal/store"
	"github.com/campuschat/handoff-gateway/internal/transport/ws"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _                     _       __  __
 | |__   __ _ _ __   __| | ___ / _|/ _|
 | '_ \ / _' | '_ \ / _' |/ _ \ |_| |_
 | | | | (_| | | | | (_| | (_) |  _|  _|
 |_| |_|\__,_|_| |_|\__,_|\___/|_| |_|   gateway
`

// getConfigPath returns the path to the gateway config file.
// Priority: HANDOFF_CONFIG env var > XDG_CONFIG_HOME/handoff/gateway.yaml > ~/.config/handoff/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HANDOFF_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "handoff", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: handoff-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    > ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    > ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	if cfg.Database.Path != "" {
		green.Print("    > ")
		fmt.Printf("Archive: %s\n", cfg.Database.Path)
	}
	fmt.Println()

	logger.Info("starting handoff-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Transcript archive is optional; without it transcripts live only in
	// memory.
	var archiver conversation.Archiver
	if cfg.Database.Path != "" {
		archive, err := store.NewSQLiteArchive(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("opening transcript archive: %w", err)
		}
		defer archive.Close()
		archiver = archive
	}

	convs := conversation.NewRegistry(archiver, conversation.Limits{
		MaxTranscriptLines: cfg.Limits.MaxTranscriptLines,
		IdleTTL:            cfg.Limits.ConversationTTL,
	}, logger)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg, func() float64 {
		return float64(convs.WaitingCount())
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}

	hub := ws.NewHub(m, logger)
	pipeline := handoff.New(convs, hub, hub, hub, m, logger)
	server := ws.NewServer(cfg.Server.HTTPAddr, hub, pipeline, cfg.Metrics.Path, metricsHandler, logger)

	if ttl := cfg.Limits.ConversationTTL; ttl > 0 {
		go runReaper(ctx, convs, ttl, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runReaper periodically expires conversations idle in state Bot beyond the
// configured TTL.
func runReaper(ctx context.Context, convs *conversation.Registry, ttl time.Duration, logger *slog.Logger) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := convs.ExpireIdle(time.Now()); removed > 0 {
				logger.Debug("reaper pass complete", "removed", removed)
			}
		}
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := "http://" + cfg.Server.HTTPAddr + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("%s", body.Status)
	fmt.Printf(" (%d sessions)\n", body.Sessions)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
