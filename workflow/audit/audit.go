package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DefaultDir is the audit root used when none is configured.
const DefaultDir = ".sagaflow/audit"

// Error is the structured error type for audit operations.
type Error struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code. One of
	// "SERIALIZATION_FAILED", "WRITE_FAILED", "DIRECTORY_FAILED".
	Code string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Sink receives audit events as they are recorded, in addition to the
// file persistence. Sinks must not block and must not panic.
type Sink interface {
	// Emit receives one recorded event.
	Emit(event Event)
}

// Log is the audit log for a single workflow transaction.
//
// Each log owns a transaction UUID and persists its events to
// {dir}/{tx}.json as a JSON array, rewritten after every Record. The
// rewrite-per-record policy is deliberate: a crash mid-run leaves a
// valid prefix file readable by later tooling.
//
// Log is safe for concurrent use. The executor records the workflow,
// task and rollback events; the one task-side writer is ToolTask, which
// records a tool_fallback event through the log handle in its task
// context.
type Log struct {
	mu     sync.Mutex
	txID   uuid.UUID
	dir    string
	events []Event
	sinks  []Sink
}

// NewLog creates a log under DefaultDir with a fresh transaction ID.
func NewLog() *Log {
	return NewLogWithDir(DefaultDir)
}

// NewLogWithDir creates a log rooted at the given directory.
func NewLogWithDir(dir string) *Log {
	return &Log{
		txID: uuid.New(),
		dir:  dir,
	}
}

// NewMemoryLog creates a log that keeps events in memory only. Replay
// and sinks work as usual; nothing is written to disk.
func NewMemoryLog() *Log {
	return &Log{txID: uuid.New()}
}

// TxID returns the transaction UUID.
func (l *Log) TxID() uuid.UUID {
	return l.txID
}

// Path returns the file this log persists to, or the empty string for
// a memory-only log.
func (l *Log) Path() string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, l.txID.String()+".json")
}

// AddSink attaches a sink receiving every subsequently recorded event.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Record appends an event and rewrites the transaction file.
func (l *Log) Record(event Event) error {
	l.mu.Lock()
	l.events = append(l.events, event)
	sinks := l.sinks
	err := l.persistLocked()
	l.mu.Unlock()

	for _, s := range sinks {
		s.Emit(event)
	}
	return err
}

// persistLocked writes the full event array to the transaction file.
// Caller holds the lock.
func (l *Log) persistLocked() error {
	if l.dir == "" {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return &Error{
			Message: "failed to create audit directory " + l.dir,
			Code:    "DIRECTORY_FAILED",
			Cause:   err,
		}
	}

	data, err := json.MarshalIndent(l.events, "", "  ")
	if err != nil {
		return &Error{
			Message: "failed to serialize audit events",
			Code:    "SERIALIZATION_FAILED",
			Cause:   err,
		}
	}

	if err := os.WriteFile(l.Path(), data, 0o644); err != nil {
		return &Error{
			Message: "failed to write audit file",
			Code:    "WRITE_FAILED",
			Cause:   err,
		}
	}
	return nil
}

// Replay returns a copy of the in-memory event stream.
func (l *Log) Replay() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]Event, len(l.events))
	copy(events, l.events)
	return events
}

// IntoEvents returns the event stream and resets the log. The
// transaction file is left on disk.
func (l *Log) IntoEvents() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.events
	l.events = nil
	return events
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// IsEmpty reports whether no events were recorded.
func (l *Log) IsEmpty() bool {
	return l.Len() == 0
}

// Load reads a persisted transaction file back into an event slice.
// Later tooling uses this to inspect crashed runs.
func Load(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{
			Message: "failed to read audit file " + path,
			Code:    "WRITE_FAILED",
			Cause:   err,
		}
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, &Error{
			Message: "failed to parse audit file " + path,
			Code:    "SERIALIZATION_FAILED",
			Cause:   err,
		}
	}
	return events, nil
}
