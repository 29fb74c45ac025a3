// Command client is a headless client: one or more bots that join the server, wander in
// random directions and log what they see. Useful for populating a dev server.
package main

import (
	"context"
	"flag"
	"fmt"
	stlog "log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"

	"github.com/irishsmurf/go-mmo-client/camera"
	"github.com/irishsmurf/go-mmo-client/input"
	"github.com/irishsmurf/go-mmo-client/logging"
	"github.com/irishsmurf/go-mmo-client/netclient"
	"github.com/irishsmurf/go-mmo-client/session"
)

var (
	serverAddr = flag.String("server", "ws://localhost:8080/ws", "websocket server URL")
	bots       = flag.Int("bots", 1, "number of bots")
	dialLimit  = flag.Int("dial-concurrency", 4, "how many bots may be connecting and joining at once")
	wander     = flag.Duration("wander", 2*time.Second, "how often a bot changes direction (0 stands still)")
	report     = flag.Duration("report", 5*time.Second, "how often each bot logs its position")
	duration   = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	logLevel   = flag.String("log", "info", "log level: debug, info, warn, error")
)

var wanderKeys = []string{"ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight", ""}

func main() {
	flag.Parse()

	logger, closer, err := logging.New(logging.Options{Level: *logLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()
	logger.Info("Starting headless client", "server", *serverAddr, "bots", *bots)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, *duration)
		defer stop()
	}

	launchBots(ctx, *bots, *dialLimit, func(n int, joined func()) {
		name := fmt.Sprintf("bot-%d-%s", n, uuid.New().String()[:4])
		runBot(ctx, name, logger.With("bot", name), joined)
	})
	logger.Info("Client finished.")
}

// launchBots starts n bots and waits for all of them to finish. A bot holds a dial slot from
// launch until it calls joined (or returns), so at most limit bots are connecting at once.
func launchBots(ctx context.Context, n, limit int, run func(n int, joined func())) {
	dialing := sizedwaitgroup.New(max(limit, 1))
	var running sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := dialing.AddWithContext(ctx); err != nil {
			break
		}
		if ctx.Err() != nil {
			dialing.Done()
			break
		}
		running.Add(1)
		go func(n int) {
			defer running.Done()
			var once sync.Once
			release := func() { once.Do(dialing.Done) }
			defer release()
			run(n, release)
		}(i)
	}
	running.Wait()
}

// runBot owns one connection and one session; everything but the manager runs here. joined is
// called once the first join was accepted or the first connection attempt failed.
func runBot(ctx context.Context, name string, logger *stlog.Logger, joined func()) {
	manager := netclient.New(netclient.Options{URL: *serverAddr, Username: name, Logger: logger})
	go manager.Run(ctx)

	sess := session.New(session.Options{
		Username: name,
		Viewport: camera.Size{W: 1024, H: 768},
		World:    camera.Size{W: 2000, H: 2000},
		Logger:   logger,
	})
	controller := input.NewController(manager, nil)
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	var wanderC <-chan time.Time
	if *wander > 0 {
		t := time.NewTicker(*wander)
		defer t.Stop()
		wanderC = t.C
	}
	reportTicker := time.NewTicker(*report)
	defer reportTicker.Stop()

	held := ""
	for {
		select {
		case ev, ok := <-manager.Events():
			if !ok {
				return
			}
			prev := sess.Connection()
			sess.HandleEvent(ev)
			if !sess.Loading() || attemptFailed(ev, prev) {
				joined()
			}
			if ev.Kind == netclient.EventState && ev.State != prev {
				if ev.State != netclient.Connected {
					controller.Reset()
					held = ""
				}
				text, _ := sess.Status()
				logger.Info("Connection state", "state", ev.State, "status", text)
			}

		case <-wanderC:
			if !sess.Joined() {
				continue
			}
			if held != "" {
				controller.KeyUp(held)
			}
			held = wanderKeys[rnd.Intn(len(wanderKeys))]
			if held != "" {
				controller.KeyDown(held)
			}

		case <-reportTicker.C:
			if x, y, ok := sess.LocalPosition(); ok {
				logger.Info("Position", "x", x, "y", y, "info", sess.Info())
			}
		}
	}
}

func attemptFailed(ev netclient.Event, prev netclient.State) bool {
	if ev.Kind != netclient.EventState {
		return false
	}
	return ev.State == netclient.Error || ev.State == netclient.Disconnected && prev != netclient.Disconnected
}
