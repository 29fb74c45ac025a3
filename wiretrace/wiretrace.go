// Package wiretrace records inbound server frames to a file for later inspection.
//
// A trace is a sequence of length-delimited protobuf Struct messages, one per frame, each
// holding the receive time and the frame decoded as generic JSON. Frames that are not JSON
// objects are kept verbatim under "raw".
package wiretrace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldAt    = "receivedAt"
	fieldFrame = "frame"
	fieldRaw   = "raw"
)

// Entry is one recorded frame.
type Entry struct {
	At    time.Time
	Frame map[string]any // nil when the frame was not a JSON object
	Raw   string
}

// Recorder appends frames to a trace file.
type Recorder struct {
	f   *os.File
	w   *bufio.Writer
	now func() time.Time
}

// Create opens path for writing, truncating an existing trace.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace: %w", err)
	}
	return &Recorder{f: f, w: bufio.NewWriter(f), now: time.Now}, nil
}

// Record appends one frame.
func (r *Recorder) Record(data []byte) error {
	msg, err := encode(r.now(), data)
	if err != nil {
		return err
	}
	if _, err := protodelim.MarshalTo(r.w, msg); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// Close flushes buffered entries and closes the file.
func (r *Recorder) Close() error {
	ferr := r.w.Flush()
	cerr := r.f.Close()
	return errors.Join(ferr, cerr)
}

func encode(at time.Time, data []byte) (*structpb.Struct, error) {
	fields := map[string]any{fieldAt: at.UTC().Format(time.RFC3339Nano)}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err == nil && frame != nil {
		fields[fieldFrame] = frame
	} else {
		fields[fieldRaw] = string(data)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode trace entry: %w", err)
	}
	return msg, nil
}

// Read calls fn for every entry in a trace, in recording order.
func Read(r io.Reader, fn func(Entry) error) error {
	br := bufio.NewReader(r)
	for {
		msg := &structpb.Struct{}
		if err := protodelim.UnmarshalFrom(br, msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read trace: %w", err)
		}
		entry, err := decode(msg)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}

func decode(msg *structpb.Struct) (Entry, error) {
	var e Entry
	fields := msg.GetFields()
	if at := fields[fieldAt].GetStringValue(); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return e, fmt.Errorf("trace entry time: %w", err)
		}
		e.At = t
	}
	if frame := fields[fieldFrame].GetStructValue(); frame != nil {
		e.Frame = frame.AsMap()
	}
	e.Raw = fields[fieldRaw].GetStringValue()
	return e, nil
}

// Dump writes a trace as JSON lines, one entry per line.
func Dump(w io.Writer, r io.Reader) (int, error) {
	n := 0
	bw := bufio.NewWriter(w)
	err := Read(r, func(e Entry) error {
		fields := map[string]any{fieldAt: e.At.Format(time.RFC3339Nano)}
		if e.Frame != nil {
			fields[fieldFrame] = e.Frame
		} else {
			fields[fieldRaw] = e.Raw
		}
		msg, err := structpb.NewStruct(fields)
		if err != nil {
			return err
		}
		line, err := protojson.Marshal(msg)
		if err != nil {
			return err
		}
		bw.Write(line)
		bw.WriteByte('\n')
		n++
		return nil
	})
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	return n, err
}

// DumpFile dumps the trace at path.
func DumpFile(w io.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	return Dump(w, f)
}
