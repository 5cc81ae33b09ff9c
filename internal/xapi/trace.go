package xapi

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// TraceEntry is one finished Fetch call. Request headers and bodies are never
// recorded because they carry signed credentials and user content.
type TraceEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code,omitempty"`
	Result     string    `json:"result"`
	Attempts   int       `json:"attempts,omitempty"`
	Remaining  int       `json:"remaining"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

func traceEntryFor(o Outcome, at time.Time) TraceEntry {
	entry := TraceEntry{
		Timestamp:  at,
		Method:     o.Method,
		Endpoint:   o.Endpoint,
		StatusCode: o.Status,
		Result:     o.Result,
		Attempts:   o.Attempts,
		Remaining:  o.Remaining,
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	return entry
}

// Tracer writes entries as NDJSON.
type Tracer struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

// NewTracer wraps out. Closing the tracer closes out.
func NewTracer(out io.WriteCloser) *Tracer {
	return &Tracer{out: out, enc: json.NewEncoder(out)}
}

// Write appends one entry. Encoding failures and writes after Close are
// dropped.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enc == nil {
		return
	}
	_ = t.enc.Encode(entry)
}

func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enc == nil {
		return nil
	}
	t.enc = nil
	return t.out.Close()
}

// OpenTracer appends entries to path, creating it owner-only if missing.
func OpenTracer(path string) (*Tracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewTracer(f), nil
}
