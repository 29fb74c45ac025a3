// Command dev-server runs a local game server for the client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irishsmurf/go-mmo-client/devserver"
	"github.com/irishsmurf/go-mmo-client/logging"
)

var (
	addr        = flag.String("addr", ":8080", "http service address")
	worldWidth  = flag.Float64("world-width", 2000, "world width in units")
	worldHeight = flag.Float64("world-height", 2000, "world height in units")
	tick        = flag.Duration("tick", 100*time.Millisecond, "simulation tick")
	speed       = flag.Float64("speed", 8, "units moved per tick")
	logLevel    = flag.String("log", "info", "log level: debug, info, warn, error")
	logFormat   = flag.String("log-format", "text", "log format: text or json")
)

func main() {
	flag.Parse()

	logger, closer, err := logging.New(logging.Options{Level: *logLevel, Format: *logFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := devserver.NewHub(devserver.Options{
		WorldWidth:  *worldWidth,
		WorldHeight: *worldHeight,
		Tick:        *tick,
		Speed:       *speed,
		Logger:      logger,
	})
	go hub.Run(ctx) // Start the hub's processing loop

	srv := &http.Server{Addr: *addr, Handler: devserver.Handler(hub), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting HTTP server", "address", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("ListenAndServe failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
