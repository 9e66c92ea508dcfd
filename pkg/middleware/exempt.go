package middleware

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gatehouse-sso/gatehouse/pkg/observability"
)

// ExemptList holds the path patterns that skip enforcement. A pattern
// ending in "/" matches as a prefix, a pattern containing a glob
// metacharacter matches via path.Match, anything else matches exactly.
type ExemptList struct {
	mu    sync.RWMutex
	base  []string
	extra []string
}

// NewExemptList creates a list from the configured base patterns
func NewExemptList(patterns []string) *ExemptList {
	base := make([]string, len(patterns))
	copy(base, patterns)
	return &ExemptList{base: base}
}

// Match reports whether the request path is exempt from enforcement
func (l *ExemptList) Match(requestPath string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, patterns := range [][]string{l.base, l.extra} {
		for _, pattern := range patterns {
			if matchPattern(pattern, requestPath) {
				return true
			}
		}
	}
	return false
}

func matchPattern(pattern, requestPath string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, requestPath)
		return err == nil && ok
	}
	if strings.HasSuffix(pattern, "/") {
		return strings.HasPrefix(requestPath, pattern) || requestPath == strings.TrimSuffix(pattern, "/")
	}
	return requestPath == pattern || strings.HasPrefix(requestPath, pattern+"/")
}

// Patterns returns the current pattern set, base first
func (l *ExemptList) Patterns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.base)+len(l.extra))
	out = append(out, l.base...)
	out = append(out, l.extra...)
	return out
}

// exemptFile is the YAML shape for file-provided patterns
type exemptFile struct {
	ExemptPaths []string `yaml:"exempt_paths"`
}

// LoadFile replaces the file-provided patterns from a YAML file. Base
// patterns from configuration are unaffected.
func (l *ExemptList) LoadFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read exempt path file: %w", err)
	}

	var parsed exemptFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse exempt path file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.extra = parsed.ExemptPaths
	return nil
}

// Watch loads the file and reloads it whenever it changes, until the
// context is cancelled. A reload failure keeps the previous patterns.
func (l *ExemptList) Watch(ctx context.Context, filePath string, logger *observability.Logger) error {
	if err := l.LoadFile(filePath); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops
	// watches placed on the file itself.
	dir := path.Dir(filePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != filePath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := l.LoadFile(filePath); err != nil {
					logger.WithError(err).Warn("failed to reload exempt path file")
					continue
				}
				logger.WithField("path", filePath).Info("reloaded exempt path file")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("exempt path watcher error")
			}
		}
	}()

	return nil
}
