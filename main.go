package main

import (
	"context"
	"embed"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/presence.report/internal/api"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/ld2412"
	"github.com/banshee-data/presence.report/internal/serialmux"
	"github.com/banshee-data/presence.report/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode      = flag.Bool("dev", false, "Run in dev mode with a mock serial port replaying fixtures")
	disableRadar = flag.Bool("disable-radar", false, "Run without a serial port (API and admin routes only)")
	listen       = flag.String("listen", ":8080", "Listen address")
	serialPort   = flag.String("serial-port", "/dev/ttySC1", "Serial port device path")
	baudRate     = flag.Int("baud-rate", 115200, "Serial port baud rate")
	dbFile       = flag.String("db", "presence_data.db", "SQLite database path")
)

func main() {
	flag.Parse()

	log.Printf("presence.report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var m serialmux.SerialMuxInterface
	switch {
	case *disableRadar:
		m = serialmux.NewDisabledSerialMux()
	case *devMode:
		data, err := os.ReadFile("fixtures.bin")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		m = serialmux.NewMockSerialMux(data)
	default:
		var err error
		m, err = serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
	}
	defer m.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	sessionID, err := database.StartSession(*serialPort, *baudRate)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer func() {
		if err := database.EndSession(sessionID); err != nil {
			log.Printf("failed to end session: %v", err)
		}
	}()

	engine := ld2412.NewEngine(ld2412.Config{
		Transmit: m.SendFrame,
	})

	// Create a wait group for the HTTP server, serial monitor, decode
	// engine, and event handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// run the decode engine's processing loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("decode engine stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	// feed raw serial chunks into the decode engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case chunk := <-c:
				engine.Feed(chunk)
			case <-ctx.Done():
				log.Printf("feed routine terminated")
				return
			}
		}
	}()

	// subscribe to decoded events and record them
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, events := engine.Subscribe()
		defer engine.Unsubscribe(id)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					log.Printf("event channel closed")
					return
				}
				if err := serialmux.HandleEvent(database, sessionID, ev); err != nil {
					log.Printf("error handling event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("event routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)
		m.AttachAdminRoutes(mux)

		// mount the API handlers
		apiServer := api.NewServer(engine, database, sessionID)
		mux.Handle("/api/", apiServer.ServeMux())

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = http.FileServer(http.FS(staticFiles))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
