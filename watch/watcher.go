// Package watch re-validates artifacts as they change on disk.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/genguard/validation"
)

// Config configures the watcher
type Config struct {
	// Root is the directory to watch recursively
	Root string

	// Validators maps a file extension (".py") to the validator for it.
	// Files with other extensions are ignored.
	Validators map[string]validation.Validator

	// DebounceDelay is how long to wait for more changes before validating
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// Operation indicates the type of change
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Event is emitted for each changed artifact
type Event struct {
	// Path is relative to Root
	Path      string
	Operation Operation
	// Result is nil for deletes and read errors
	Result *validation.Result
	Error  error
}

// Watcher watches for artifact changes and emits validation results
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	// Content hashes, so touching a file without changing it is silent
	hashes map[string]string

	events chan Event
}

// New creates a watcher. Call Start to begin watching.
func New(config Config) (*Watcher, error) {
	if len(config.Validators) == 0 {
		return nil, fmt.Errorf("no validators configured")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = 100 * time.Millisecond
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		events:  make(chan Event, 100),
	}, nil
}

// Events returns the channel of validation events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds watches and processes changes until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.config.Root); err != nil {
		w.watcher.Close()
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.Root,
		"debounce", w.config.DebounceDelay)
	return nil
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func skipDir(base string) bool {
	return base == "vendor" || base == "__pycache__" || strings.HasPrefix(base, ".")
}

func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.config.DebounceDelay)
	defer func() {
		ticker.Stop()
		w.watcher.Close()
		close(w.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if _, ok := w.validatorFor(path); !ok {
		// Handle directory creation (for new watches)
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() && !skipDir(filepath.Base(path)) {
				if err := w.watcher.Add(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
		}
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected", "path", path, "op", event.Op.String())
}

func (w *Watcher) validatorFor(path string) (validation.Validator, bool) {
	v, ok := w.config.Validators[strings.ToLower(filepath.Ext(path))]
	return v, ok
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		if ctx.Err() != nil {
			return
		}

		relPath, err := filepath.Rel(w.config.Root, path)
		if err != nil {
			relPath = path
		}
		event := Event{Path: relPath}

		data, err := os.ReadFile(path)
		if err != nil && (os.IsNotExist(err) || op.Has(fsnotify.Remove)) {
			delete(w.hashes, relPath)
			event.Operation = OpDelete
			w.send(ctx, event)
			continue
		}
		if err != nil {
			event.Error = err
			w.send(ctx, event)
			continue
		}

		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		oldHash, hadHash := w.hashes[relPath]
		if hadHash && oldHash == hash {
			continue
		}
		w.hashes[relPath] = hash

		if hadHash {
			event.Operation = OpModify
		} else {
			event.Operation = OpCreate
		}
		v, _ := w.validatorFor(path)
		event.Result = v.Validate(ctx, string(data))
		w.send(ctx, event)
	}
}

func (w *Watcher) send(ctx context.Context, event Event) {
	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}
