package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger implements audit logging as newline-delimited JSON in a file
type FileLogger struct {
	basePath string
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
}

// NewFileLogger creates a new file-based audit logger under basePath
func NewFileLogger(basePath string) (*FileLogger, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	filename := filepath.Join(basePath, "audit.log")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileLogger{
		basePath: basePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log appends the event as one JSON line
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log file is closed")
	}
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close syncs and closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		l.file = nil
		return fmt.Errorf("failed to sync audit log: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
