package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/aeroview-data/flight.report/internal/api"
	"github.com/aeroview-data/flight.report/internal/bridge"
	"github.com/aeroview-data/flight.report/internal/config"
	"github.com/aeroview-data/flight.report/internal/markers"
	"github.com/aeroview-data/flight.report/internal/playback"
	"github.com/aeroview-data/flight.report/internal/replay"
	"github.com/aeroview-data/flight.report/internal/timeline"
	"github.com/aeroview-data/flight.report/internal/version"
	"github.com/aeroview-data/flight.report/internal/ws"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dataFile   = flag.String("data", "", "Telemetry CSV path (overrides config)")
	syncFile   = flag.String("sync", "", "Timeline anchor table path (overrides config)")
	bridgeAddr = flag.String("bridge", "", "Legacy UDP consumer address (overrides config; 'off' disables)")
	eagerLoad  = flag.Bool("load", true, "Load the telemetry file at startup instead of waiting for /api/init")
)

func main() {
	flag.Parse()

	log.Printf("flight.report %s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dataFile != "" {
		cfg.DataFile = *dataFile
	}
	if *syncFile != "" {
		cfg.SyncFile = *syncFile
	}
	switch *bridgeAddr {
	case "":
	case "off":
		cfg.BridgeAddr = ""
	default:
		cfg.BridgeAddr = *bridgeAddr
	}

	markerDB, err := markers.New(cfg.MarkerDB)
	if err != nil {
		log.Fatalf("failed to open marker database: %v", err)
	}
	defer markerDB.Close()
	if err := markerDB.Seed(markers.Defaults()); err != nil {
		log.Fatalf("failed to seed markers: %v", err)
	}

	mapper := timeline.Load(cfg.SyncFile)
	if mapper.Available() {
		log.Printf("loaded %d timeline anchors from %s", mapper.Len(), cfg.SyncFile)
	} else {
		log.Printf("no timeline anchors available, using fixed offset of %.2fs", cfg.ExternalOffsetSeconds)
	}

	engine := replay.NewEngine(cfg.DataFile, mapper, cfg.ExternalOffsetSeconds)
	hub := ws.NewHub(engine)

	var udpSink *bridge.Sink
	if cfg.BridgeAddr == "" {
		udpSink = bridge.Disabled()
		log.Print("datagram bridge disabled")
	} else {
		udpSink, err = bridge.New(cfg.BridgeAddr)
		if err != nil {
			// The legacy consumer is optional hardware; keep serving
			// without it.
			log.Printf("datagram bridge unavailable: %v", err)
			udpSink = bridge.Disabled()
		}
	}

	sched := playback.NewScheduler(engine.Source(), playback.SinkSet{
		Always:       []playback.Sink{ws.FrameSink(hub), udpSink},
		WhileRunning: []playback.Sink{ws.BridgeSink(hub)},
	})
	engine.AttachScheduler(sched)

	if *eagerLoad {
		if _, err := os.Stat(cfg.DataFile); err != nil {
			log.Printf("telemetry file %s not found, waiting for /api/init", cfg.DataFile)
		} else if summary, err := engine.Initialize(cfg.DataFile); err != nil {
			log.Printf("failed to load telemetry data: %v", err)
		} else {
			log.Printf("telemetry ready: %d samples, %d columns", summary.Count, len(summary.Columns))
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	udpSink.Start(ctx)

	// run the scheduling loop; it persists across pause/finish and is
	// the only goroutine that emits samples
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("playback loop terminated: %v", err)
		}
	}()

	// run the websocket hub registry
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
		log.Print("websocket hub terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		apiMux := api.NewServer(engine, markerDB, filepath.Dir(cfg.DataFile)).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		mux.HandleFunc("/ws", hub.Handler())

		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}
