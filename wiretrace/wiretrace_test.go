package wiretrace

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func recordFrames(t *testing.T, frames ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pb")
	rec, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	tick := 0
	rec.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	for _, f := range frames {
		if err := rec.Record([]byte(f)); err != nil {
			t.Fatal(err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecordAndRead(t *testing.T) {
	path := recordFrames(t,
		`{"action":"join_game","success":true,"playerId":"p1","players":{"p1":{"x":100,"y":100}}}`,
		`{"action":"player_left","playerId":"p9"}`,
		`not json`,
	)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var got []Entry
	if err := Read(f, func(e Entry) error { got = append(got, e); return nil }); err != nil {
		t.Fatal(err)
	}

	if len(got) != 3 {
		t.Fatalf("read %d entries", len(got))
	}
	if got[0].Frame["action"] != "join_game" || got[0].Frame["playerId"] != "p1" {
		t.Fatalf("first frame = %v", got[0].Frame)
	}
	players := got[0].Frame["players"].(map[string]any)
	if players["p1"].(map[string]any)["x"] != float64(100) {
		t.Fatalf("nested values lost: %v", players)
	}
	if got[1].Frame["action"] != "player_left" {
		t.Fatalf("second frame = %v", got[1].Frame)
	}
	if got[2].Frame != nil || got[2].Raw != "not json" {
		t.Fatalf("raw entry = %+v", got[2])
	}
	for i := range got {
		if want := base.Add(time.Duration(i+1) * time.Millisecond); !got[i].At.Equal(want) {
			t.Fatalf("entry %d at %s, want %s", i, got[i].At, want)
		}
	}
}

func TestDumpWritesJSONLines(t *testing.T) {
	path := recordFrames(t, `{"action":"players_moved","players":{}}`, `oops`)

	var buf bytes.Buffer
	n, err := DumpFile(&buf, path)
	if err != nil || n != 2 {
		t.Fatalf("dump = %d, %v", n, err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	var first struct {
		ReceivedAt string         `json:"receivedAt"`
		Frame      map[string]any `json:"frame"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line %q: %v", lines[0], err)
	}
	if first.Frame["action"] != "players_moved" || first.ReceivedAt == "" {
		t.Fatalf("first line = %+v", first)
	}
	if !strings.Contains(lines[1], `"oops"`) {
		t.Fatalf("raw line = %s", lines[1])
	}
}

func TestReadTruncatedTrace(t *testing.T) {
	msg, err := encode(base, []byte(`{"action":"players_moved","players":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	var one bytes.Buffer
	if _, err := protodelim.MarshalTo(&one, msg); err != nil {
		t.Fatal(err)
	}
	data := one.Bytes()

	var buf bytes.Buffer
	buf.Write(data)
	buf.Write(data[:len(data)-3])

	count := 0
	err = Read(&buf, func(Entry) error { count++; return nil })
	if err == nil {
		t.Fatalf("truncated trace read without error")
	}
	if count != 1 {
		t.Fatalf("entries before the truncation = %d", count)
	}
}

func TestReadEmpty(t *testing.T) {
	if err := Read(&bytes.Buffer{}, func(Entry) error { t.Fatal("unexpected entry"); return nil }); err != nil {
		t.Fatalf("empty trace: %v", err)
	}
}
