package netclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irishsmurf/go-mmo-client/protocol"
)

type testServer struct {
	*httptest.Server
	frames chan map[string]any
	conns  chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		frames: make(chan map[string]any, 64),
		conns:  make(chan *websocket.Conn, 8),
	}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if err := json.Unmarshal(data, &frame); err == nil {
				ts.frames <- frame
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func (ts *testServer) nextFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case f := <-ts.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a client frame")
		return nil
	}
}

func (ts *testServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a connection")
		return nil
	}
}

func waitState(t *testing.T, m *Manager, want State) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-m.Events():
			if !ok {
				t.Fatalf("events closed while waiting for %s", want)
			}
			if ev.Kind == EventState && ev.State == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s (current %s)", want, m.State())
		}
	}
}

func startManager(t *testing.T, url string, delay time.Duration) (*Manager, context.CancelFunc) {
	t.Helper()
	m := New(Options{URL: url, Username: "ann", ReconnectDelay: delay})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("manager did not stop")
		}
	})
	return m, cancel
}

func TestJoinSentOnConnect(t *testing.T) {
	ts := newTestServer(t)
	m, _ := startManager(t, ts.wsURL(), 50*time.Millisecond)

	waitState(t, m, Connecting)
	waitState(t, m, Connected)

	join := ts.nextFrame(t)
	if join["action"] != "join_game" || join["username"] != "ann" {
		t.Fatalf("first frame = %v", join)
	}

	m.Send(protocol.MoveCommand(protocol.DirLeft))
	move := ts.nextFrame(t)
	if move["action"] != "move" || move["direction"] != "left" {
		t.Fatalf("move frame = %v", move)
	}
}

func TestInboundFramesDeliveredInOrder(t *testing.T) {
	ts := newTestServer(t)
	m, _ := startManager(t, ts.wsURL(), 50*time.Millisecond)
	waitState(t, m, Connected)
	conn := ts.nextConn(t)

	want := []string{`{"action":"a"}`, `{"action":"b"}`, `{"action":"c"}`}
	for _, w := range want {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(w)); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case ev := <-m.Events():
			if ev.Kind == EventMessage {
				got = append(got, string(ev.Data))
			}
		case <-timeout:
			t.Fatalf("got %v before timeout", got)
		}
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCommandsDroppedWhileNotConnected(t *testing.T) {
	m := New(Options{URL: "ws://127.0.0.1:1/ws", Username: "ann"})
	if m.State() != Disconnected {
		t.Fatalf("initial state = %s", m.State())
	}
	// Must neither block nor panic.
	m.Send(protocol.MoveCommand(protocol.DirUp))
	m.Send(protocol.StopCommand())
}

func TestReconnectAfterServerClose(t *testing.T) {
	ts := newTestServer(t)
	delay := 100 * time.Millisecond
	m, _ := startManager(t, ts.wsURL(), delay)

	waitState(t, m, Connected)
	conn := ts.nextConn(t)
	ts.nextFrame(t) // join

	closedAt := time.Now()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	ev := waitState(t, m, Disconnected)
	if ev.RetryIn != delay {
		t.Fatalf("retry in = %s, want %s", ev.RetryIn, delay)
	}
	m.Send(protocol.StopCommand()) // dropped: not connected

	waitState(t, m, Connecting)
	if elapsed := time.Since(closedAt); elapsed < delay {
		t.Fatalf("reconnected after %s, before the %s delay", elapsed, delay)
	}
	waitState(t, m, Connected)

	rejoin := ts.nextFrame(t)
	if rejoin["action"] != "join_game" {
		t.Fatalf("first frame after reconnect = %v (the dropped stop must not be replayed)", rejoin)
	}
}

func TestDialFailureReportsErrorThenRetries(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	m, _ := startManager(t, "ws://"+addr+"/ws", 50*time.Millisecond)

	errEv := waitState(t, m, Error)
	if errEv.Err == nil {
		t.Fatalf("error event without cause")
	}
	waitState(t, m, Disconnected)
	waitState(t, m, Connecting)
}

func TestCancelStopsRetrying(t *testing.T) {
	ts := newTestServer(t)
	m, cancel := startManager(t, ts.wsURL(), time.Hour)
	waitState(t, m, Connected)
	conn := ts.nextConn(t)
	conn.Close()
	waitState(t, m, Disconnected)

	cancel()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-m.Events():
			if !ok {
				if m.State() != Disconnected {
					t.Fatalf("final state = %s", m.State())
				}
				return
			}
		case <-timeout:
			t.Fatalf("events channel not closed after cancel")
		}
	}
}
