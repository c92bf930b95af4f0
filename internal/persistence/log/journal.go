package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"factoryverse.ai/internal/protocol"
)

// JSONLZstdWriter appends JSON lines to hourly-rotated zstd files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	// onSeal is called with the path of every segment that finished rotating
	// (never the one still being written).
	onSeal func(path string)

	mu      sync.Mutex
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix}
}

// OnSeal registers a callback for sealed segments. Set before the first
// Write; the callback must not block.
func (w *JSONLZstdWriter) OnSeal(fn func(path string)) { w.onSeal = fn }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	sealed := w.curPath
	if err := w.closeLocked(); err != nil {
		return err
	}
	if sealed != "" && w.onSeal != nil {
		w.onSeal(sealed)
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curPath = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// EventJournal records every outbound completion/cancellation event
// (compressed). The journal is the durable record; index databases are
// derived from it.
type EventJournal struct{ w *JSONLZstdWriter }

func NewEventJournal(dataDir string) *EventJournal {
	return &EventJournal{w: NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "events")}
}

func (l *EventJournal) WriteEvent(e protocol.Event) error { return l.w.Write(e) }
func (l *EventJournal) OnSeal(fn func(path string))       { l.w.OnSeal(fn) }
func (l *EventJournal) Close() error                      { return l.w.Close() }

// CallJournal records accepted and rejected action calls with their
// acknowledgements.
type CallJournal struct{ w *JSONLZstdWriter }

func NewCallJournal(dataDir string) *CallJournal {
	return &CallJournal{w: NewJSONLZstdWriter(filepath.Join(dataDir, "calls"), "calls")}
}

// CallRecord is one invocation paired with its acknowledgement.
type CallRecord struct {
	Tick     uint64 `json:"tick"`
	AgentID  uint64 `json:"agent_id"`
	Action   string `json:"action"`
	CallID   string `json:"call_id"`
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	ActionID uint64 `json:"action_id,omitempty"`
}

func (l *CallJournal) WriteCall(r CallRecord) error { return l.w.Write(r) }
func (l *CallJournal) OnSeal(fn func(path string))  { l.w.OnSeal(fn) }
func (l *CallJournal) Close() error                 { return l.w.Close() }
