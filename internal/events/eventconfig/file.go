package eventconfig

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const defaultWatchDebounce = 500 * time.Millisecond

// document is the on-disk layout of an event configuration file.
type document struct {
	Events []EventConfig `yaml:"events"`
}

// Parse decodes and validates a YAML event configuration document.
func Parse(raw []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode event configs: %w", err)
	}
	return NewSet(doc.Events)
}

// FileSource serves configurations from a YAML file and reloads it when the
// file changes. A reload that fails keeps the previous set.
type FileSource struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration
	current  atomic.Pointer[Set]
	reloads  chan struct{}
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

func WithFileLogger(logger *slog.Logger) FileOption {
	return func(f *FileSource) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithWatchDebounce(d time.Duration) FileOption {
	return func(f *FileSource) {
		if d > 0 {
			f.debounce = d
		}
	}
}

// NewFileSource loads path once. The initial load must succeed.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	f := &FileSource{
		path:     filepath.Clean(path),
		logger:   slog.Default(),
		debounce: defaultWatchDebounce,
		reloads:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileSource) Get(ctx context.Context, eventType string) (*EventConfig, error) {
	return f.current.Load().Get(ctx, eventType)
}

func (f *FileSource) List(ctx context.Context) ([]*EventConfig, error) {
	return f.current.Load().List(ctx)
}

// Reload reads the file and swaps the set atomically on success.
func (f *FileSource) Reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read event configs: %w", err)
	}
	set, err := Parse(raw)
	if err != nil {
		return err
	}
	f.current.Store(set)
	select {
	case f.reloads <- struct{}{}:
	default:
	}
	return nil
}

// Reloaded signals after each successful reload. Used by tests.
func (f *FileSource) Reloaded() <-chan struct{} {
	return f.reloads
}

// Watch reloads on file changes until ctx is cancelled. The parent directory
// is watched so editors that replace the file by rename are picked up.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", f.path, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(f.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := f.Reload(); err != nil {
				f.logger.WarnContext(ctx, "event config reload failed, keeping previous set",
					"path", f.path,
					"error", err,
				)
				continue
			}
			f.logger.InfoContext(ctx, "event configs reloaded", "path", f.path, "count", f.current.Load().Len())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.WarnContext(ctx, "event config watcher error", "error", err)
		}
	}
}
