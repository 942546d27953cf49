// Package main provides the entry point for the LOST star-tracker server:
// it loads a star catalog and serves the pipeline (database build from that
// catalog / solve / compare) over REST, with
// solver progress and results streamed to any connected WebSocket client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darkdragonsastro/lost/internal/api/rest"
	"github.com/darkdragonsastro/lost/internal/api/websocket"
	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/database"
	"github.com/darkdragonsastro/lost/internal/eventbus"
	"github.com/darkdragonsastro/lost/internal/pipeline"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Config holds server configuration.
type Config struct {
	Port        int
	Host        string
	CatalogPath string
	Debug       bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:  8080,
		Host:  "0.0.0.0",
		Debug: true,
	}
}

func main() {
	fmt.Printf("LOST star-tracker server %s (built %s)\n", Version, BuildTime)
	fmt.Println("==========================================")

	config := DefaultConfig()
	flag.IntVar(&config.Port, "port", config.Port, "HTTP port to listen on")
	flag.StringVar(&config.Host, "host", config.Host, "host/address to bind")
	flag.StringVar(&config.CatalogPath, "catalog", "", "path to a pipe-delimited star catalog text file (required)")
	flag.BoolVar(&config.Debug, "debug", config.Debug, "run gin in debug mode")
	flag.Parse()

	if config.CatalogPath == "" {
		fmt.Fprintln(os.Stderr, "error: -catalog is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, config); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}

func run(ctx context.Context, config Config) error {
	f, err := os.Open(config.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	cat, err := catalog.ParseText(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	log.Printf("Loaded %d stars from %s", len(cat), config.CatalogPath)

	bus := eventbus.NewInMemoryBus()
	cache := database.NewInMemoryDB()

	driver := pipeline.NewDriver(bus, cache, pipeline.DefaultConfig())
	if err := driver.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize pipeline driver: %w", err)
	}
	if err := driver.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline driver: %w", err)
	}
	defer driver.Stop(ctx)

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	bridgeEventsToWebSocket(ctx, bus, wsHub)

	restConfig := rest.Config{
		Address: fmt.Sprintf("%s:%d", config.Host, config.Port),
		Debug:   config.Debug,
	}
	server := rest.NewServer(restConfig, driver, cat)

	mux := http.NewServeMux()
	mux.Handle("/", server.Handler())
	mux.HandleFunc("/ws", wsHub.HandleWebSocket)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: mux,
	}

	log.Printf("Starting server on %s:%d", config.Host, config.Port)

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	log.Printf("Server is ready at http://%s:%d", config.Host, config.Port)
	log.Println("")
	log.Println("API Endpoints:")
	log.Println("  GET  /api/v1/health           - Health check")
	log.Println("  POST /api/v1/database/build    - Narrow the catalog and build a pair-distance database")
	log.Println("  GET  /api/v1/database/current  - Retrieve the last built database")
	log.Println("  POST /api/v1/solve             - Identify stars and solve attitude from centroids")
	log.Println("  POST /api/v1/solve/compare      - Compare two identification sets")
	log.Println("  GET  /api/v1/catalog/stars/:index/distances - Diagnostic: a star's pair distances")
	log.Println("  WS   /ws                       - Live solve progress and results")
	log.Println("")

	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// bridgeEventsToWebSocket subscribes to every pipeline event topic and
// re-broadcasts each one to connected WebSocket clients, so a client only
// ever has to know about the WebSocket protocol, not the in-process event
// bus backing it.
func bridgeEventsToWebSocket(ctx context.Context, bus eventbus.EventBus, hub *websocket.Hub) {
	topics := []string{
		pipeline.TopicDatabaseBuilt,
		pipeline.TopicSolved,
		pipeline.TopicFailed,
		pipeline.TopicPyramidProgress,
	}
	for _, topic := range topics {
		topic := topic
		_, _ = bus.Subscribe(ctx, topic, func(e eventbus.Event) {
			hub.Broadcast(topic, e.Data)
		})
	}
}
