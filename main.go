package main

import (
	"context"
	"errors"
	"fmt"
	stlog "log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/irishsmurf/go-mmo-client/assets"
	"github.com/irishsmurf/go-mmo-client/camera"
	"github.com/irishsmurf/go-mmo-client/config"
	"github.com/irishsmurf/go-mmo-client/game"
	"github.com/irishsmurf/go-mmo-client/logging"
	"github.com/irishsmurf/go-mmo-client/metrics"
	"github.com/irishsmurf/go-mmo-client/netclient"
	"github.com/irishsmurf/go-mmo-client/render"
	"github.com/irishsmurf/go-mmo-client/session"
	"github.com/irishsmurf/go-mmo-client/wiretrace"
)

func main() {
	cfg, err := config.FromOS()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.DumpTrace != "" {
		n, err := wiretrace.DumpFile(os.Stdout, cfg.DumpTrace)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "%d frames\n", n)
		return
	}

	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logCloser.Close()
	logger = logger.With("sessionId", uuid.New().String()[:8])
	stlog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Client failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("Client finished.")
}

func run(cfg *config.Config, logger *stlog.Logger) error {
	logger.Info("Starting client", "server", cfg.ServerURL, "username", cfg.Username, "assetBase", cfg.AssetBase)

	// --- Context for graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)
	go func() {
		select {
		case <-interrupt:
			logger.Info("Interrupt received, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)

	frames := render.NewFrames(assets.NewResolver(cfg.AssetBase, nil), cfg.DecodeWorkers, logger)
	defer frames.Close()
	renderer, err := render.New(frames, cfg.WorldImage, logger)
	if err != nil {
		return err
	}

	var recorder game.Recorder
	if cfg.TraceFile != "" {
		rec, err := wiretrace.Create(cfg.TraceFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("Closing wire trace", "error", err)
			}
		}()
		recorder = rec
		logger.Info("Recording inbound frames", "file", cfg.TraceFile)
	}

	manager := netclient.New(netclient.Options{
		URL:            cfg.ServerURL,
		Username:       cfg.Username,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	})
	netDone := make(chan struct{})
	go func() {
		defer close(netDone)
		manager.Run(ctx)
	}()

	sess := session.New(session.Options{
		Username: cfg.Username,
		Viewport: camera.Size{W: float64(cfg.WindowWidth), H: float64(cfg.WindowHeight)},
		World:    camera.Size{W: cfg.WorldWidth, H: cfg.WorldHeight},
		Logger:   logger,
	})
	g := game.New(game.Options{
		Session:  sess,
		Events:   manager.Events(),
		Sender:   manager,
		Renderer: renderer,
		Frames:   frames,
		Recorder: recorder,
		Logger:   logger,
	})

	// --- Setup and run Ebitengine ---
	ebiten.SetWindowSize(cfg.WindowWidth, cfg.WindowHeight)
	ebiten.SetWindowTitle("Go MMO Client - " + cfg.Username)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetScreenClearedEveryFrame(false)
	ebiten.SetRunnableOnUnfocused(true)

	runErr := ebiten.RunGameWithOptions(&stoppable{Game: g, ctx: ctx}, nil)
	cancel()
	<-netDone
	if runErr != nil && !errors.Is(runErr, ebiten.Termination) {
		return fmt.Errorf("ebitengine: %w", runErr)
	}
	return nil
}

// stoppable ends the ebiten loop once ctx is cancelled, e.g. by a signal.
type stoppable struct {
	*game.Game
	ctx context.Context
}

func (s *stoppable) Update() error {
	if s.ctx.Err() != nil {
		return ebiten.Termination
	}
	return s.Game.Update()
}
