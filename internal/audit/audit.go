// Package audit records one JSON Lines entry per proxied request.
// Entries carry the key index, never the key itself.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxSize = 50 * 1024 * 1024 // 50 MiB
	KeepFiles      = 3                 // keep current + 3 rotated files
)

// Entry represents a single audit log entry.
type Entry struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration_ns"`
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	Placement   string        `json:"placement,omitempty"`
	KeyIndex    int           `json:"key_index"`
	StatusCode  int           `json:"status_code"`
	RequestSize int64         `json:"request_size"`
	RemoteAddr  string        `json:"remote_addr"`
	Error       string        `json:"error,omitempty"`
}

// Logger appends entries to a file and rotates it by size.
type Logger struct {
	path    string
	maxSize int64 // max file size in bytes before rotation (0 = no limit)
	file    *os.File
	size    int64
	mu      sync.Mutex
	logger  *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithMaxSize overrides the rotation threshold.
func WithMaxSize(n int64) Option {
	return func(l *Logger) {
		l.maxSize = n
	}
}

// WithLogger sets the logger used to report write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

// Open opens (or creates) the audit log at path for appending.
func Open(path string, opts ...Option) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	l := &Logger{
		path:    path,
		maxSize: DefaultMaxSize,
		file:    f,
		size:    size,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log appends an entry, filling in ID and Timestamp when unset.
// Write failures are logged rather than returned so they never fail a request.
func (l *Logger) Log(entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("audit log marshal failed", "error", err)
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	n, err := l.file.Write(data)
	if err != nil {
		l.logger.Warn("audit log write failed", "error", err)
		return
	}

	l.size += int64(n)
	if l.maxSize > 0 && l.size >= l.maxSize {
		l.rotate()
	}
}

// rotate shifts path.2 -> path.3, path.1 -> path.2, path -> path.1 and reopens path.
// Must be called with mu held.
func (l *Logger) rotate() {
	l.file.Close()

	for i := KeepFiles; i > 0; i-- {
		old := fmt.Sprintf("%s.%d", l.path, i)
		if i == KeepFiles {
			os.Remove(old)
		}
		if i > 1 {
			prev := fmt.Sprintf("%s.%d", l.path, i-1)
			os.Rename(prev, old)
		} else {
			os.Rename(l.path, old)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		l.logger.Warn("audit log rotation failed", "error", err)
		l.file = nil
		return
	}
	l.file = f
	l.size = 0
}

// Close closes the underlying file. Later Log calls are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Read returns all entries in path in write order, skipping malformed lines.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("error reading audit log: %w", err)
	}

	return entries, nil
}
