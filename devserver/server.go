package devserver

import (
	"bytes"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // local development only
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	} else {
		ip = strings.Split(ip, ",")[0]
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	clientLogger := hub.logger.With("connId", uuid.New().String()[:8], "remoteAddr", ip)
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: clientLogger,
	}
	if !submit(hub, hub.register, client) {
		conn.Close()
		return
	}

	go client.writePump(clientLogger)
	go client.readPump(clientLogger)
	clientLogger.Info("WebSocket connection established")
}

// Handler serves the websocket endpoint on /ws and the world image on /world.png.
func Handler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})

	var (
		once  sync.Once
		world []byte
		err   error
	)
	mux.HandleFunc("/world.png", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			world, err = WorldImage(int(hub.opts.WorldWidth), int(hub.opts.WorldHeight))
		})
		if err != nil {
			hub.logger.Error("Failed to render world image", "error", err)
			http.Error(w, "world image unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		http.ServeContent(w, r, "world.png", time.Time{}, bytes.NewReader(world))
	})
	return mux
}
