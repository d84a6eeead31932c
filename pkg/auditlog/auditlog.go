// Package auditlog records authentication decisions to a writer, buffered and
// flushed in the background so that logging never sits on the request path.
package auditlog

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	// MaxBufferSize is the number of entries buffered before a flush.
	MaxBufferSize = 100
	// FlushInterval is how often buffered entries are flushed regardless of
	// buffer size.
	FlushInterval = 5 * time.Second
)

// Entry is one authentication decision.
type Entry struct {
	Timestamp  time.Time
	RequestID  string
	RemoteIP   string
	Method     string
	RequestURI string
	Account    string
	Outcome    string
	Status     int
}

// Logger buffers formatted entries and writes them out in batches.
type Logger struct {
	w io.Writer

	mu      sync.Mutex
	entries []string

	stop chan struct{}
	once sync.Once
}

// NewLogger creates a logger writing to w and starts its background flusher.
func NewLogger(w io.Writer) *Logger {
	l := &Logger{
		w:       w,
		entries: make([]string, 0, MaxBufferSize),
		stop:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Log buffers one decision entry.
func (l *Logger) Log(entry *Entry) {
	line := formatEntry(entry)

	l.mu.Lock()
	l.entries = append(l.entries, line)
	full := len(l.entries) >= MaxBufferSize
	l.mu.Unlock()

	if full {
		l.Flush()
	}
}

// Flush writes all buffered entries to the underlying writer.
func (l *Logger) Flush() {
	l.mu.Lock()
	if len(l.entries) == 0 {
		l.mu.Unlock()
		return
	}
	batch := strings.Join(l.entries, "")
	l.entries = l.entries[:0]
	l.mu.Unlock()

	// Write errors are swallowed; the audit trail must never fail the
	// requests it describes.
	io.WriteString(l.w, batch)
}

// Close stops the background flusher and flushes remaining entries.
func (l *Logger) Close() {
	l.once.Do(func() {
		close(l.stop)
	})
	l.Flush()
}

func (l *Logger) run() {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.stop:
			return
		}
	}
}

// formatEntry renders one line:
//
//	time request-id remote-ip method uri account outcome status
func formatEntry(entry *Entry) string {
	account := entry.Account
	if account == "" {
		account = "-"
	}
	return fmt.Sprintf("%s %s %s %s %s %s %s %d\n",
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.RequestID,
		entry.RemoteIP,
		entry.Method,
		entry.RequestURI,
		account,
		entry.Outcome,
		entry.Status,
	)
}
