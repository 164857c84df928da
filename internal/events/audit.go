package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxLogSize is the rotation threshold (100MB).
	DefaultMaxLogSize = 100 * 1024 * 1024
	archiveDirName    = "archive"
)

// AuditEntry is one line of the audit log: an applied report, a recorded
// triggering, or a rejected inbox file.
type AuditEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventID     string         `json:"event_id"`
	EventType   EventType      `json:"event_type"`
	Application string         `json:"application,omitempty"`
	Stage       string         `json:"stage,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// AuditLogger appends JSONL entries to a single log file, rotating it into
// an archive directory when it exceeds maxSize.
type AuditLogger struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	logPath     string
	rotations   int
}

// NewAuditLogger opens (creating if needed) the audit log at logPath.
func NewAuditLogger(logPath string, maxSize int64) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	l := &AuditLogger{logPath: logPath, maxSize: maxSize}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// Record appends an entry, assigning it a fresh event id and timestamp when
// unset.
func (l *AuditLogger) Record(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.EventID == "" {
		entry.EventID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	if l.currentSize+int64(len(line)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(line)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

// RecordEvent appends a bus event as an audit entry.
func (l *AuditLogger) RecordEvent(event Event) error {
	return l.Record(AuditEntry{
		Timestamp:   event.Timestamp,
		EventType:   event.Type,
		Application: event.Application,
		Stage:       event.Stage,
		Details:     event.Data,
	})
}

// Close closes the underlying file.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = file
	l.currentSize = stat.Size()
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close audit log for rotation: %w", err)
	}
	l.file = nil

	archiveDir := filepath.Join(filepath.Dir(l.logPath), archiveDirName)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	l.rotations++
	archived := filepath.Join(archiveDir,
		fmt.Sprintf("%s.%s.%03d", filepath.Base(l.logPath), time.Now().UTC().Format("20060102T150405"), l.rotations))
	if err := os.Rename(l.logPath, archived); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	return l.open()
}
