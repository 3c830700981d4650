package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/rfx/internal/model"
	"github.com/roach88/rfx/internal/normalize"
)

// DefaultDebounce is how long a view file must stay quiet before it is
// re-read. DAW scripts often write the file in several chunks.
const DefaultDebounce = 50 * time.Millisecond

// File is a Transport over two files: a session view JSON file written by
// the DAW, and a command file the transport appends one JSON call per line to.
type File struct {
	viewPath    string
	commandPath string
	debounce    time.Duration
	logger      *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	last    model.RawSnapshot
	running bool
	writeMu sync.Mutex

	snaps hub[model.RawSnapshot]

	stopCh chan struct{}
	doneCh chan struct{}
}

// FileOption configures a File transport.
type FileOption func(*File)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) FileOption {
	return func(f *File) { f.debounce = d }
}

// WithFileLogger sets the logger.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *File) { f.logger = l }
}

// NewFile returns a file transport. Call Start to begin watching.
func NewFile(viewPath, commandPath string, opts ...FileOption) (*File, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	f := &File{
		viewPath:    filepath.Clean(viewPath),
		commandPath: commandPath,
		debounce:    DefaultDebounce,
		logger:      slog.Default(),
		watcher:     w,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Start loads the current view file, if any, and begins watching its
// directory. Watching the directory catches editors that replace the file.
func (f *File) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.mu.Unlock()

	if err := f.watcher.Add(filepath.Dir(f.viewPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.viewPath), err)
	}
	if _, err := os.Stat(f.viewPath); err == nil {
		if err := f.reload(); err != nil {
			f.logger.Warn("initial view load failed", "path", f.viewPath, "err", err)
		}
	}
	go f.run()
	return nil
}

// Close stops watching and waits for the watch loop to exit.
func (f *File) Close() error {
	f.mu.Lock()
	wasRunning := f.running
	f.running = false
	f.mu.Unlock()

	if wasRunning {
		close(f.stopCh)
		<-f.doneCh
	}
	return f.watcher.Close()
}

func (f *File) run() {
	defer close(f.doneCh)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-f.stopCh:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.viewPath || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(f.debounce)
			} else {
				timer.Reset(f.debounce)
			}
			timerCh = timer.C
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error("view watcher error", "err", err)
		case <-timerCh:
			timerCh = nil
			if err := f.reload(); err != nil {
				f.logger.Warn("view reload failed", "path", f.viewPath, "err", err)
			}
		}
	}
}

func (f *File) reload() error {
	data, err := os.ReadFile(f.viewPath)
	if err != nil {
		return fmt.Errorf("read view: %w", err)
	}
	snap, err := normalize.Decode(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.last = snap
	f.mu.Unlock()
	f.snaps.emit(snap)
	return nil
}

// Boot implements Transport. It reads the view file once and reports its seq.
func (f *File) Boot(ctx context.Context) (Boot, error) {
	if err := ctx.Err(); err != nil {
		return Boot{}, err
	}
	if err := f.reload(); err != nil {
		return Boot{}, fmt.Errorf("boot: %w", err)
	}
	return Boot{Seq: normalize.Normalize(f.Snapshot()).Snapshot.Seq}, nil
}

// Snapshot implements Transport.
func (f *File) Snapshot() model.RawSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Subscribe implements Transport.
func (f *File) Subscribe(fn func(model.RawSnapshot)) func() {
	return f.snaps.add(fn)
}

// Syscall implements Transport by appending the call as one JSON line.
func (f *File) Syscall(ctx context.Context, call model.Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encode call: %w", err)
	}
	line = append(line, '\n')

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	out, err := os.OpenFile(f.commandPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open command file: %w", err)
	}
	if _, err := out.Write(line); err != nil {
		_ = out.Close()
		return fmt.Errorf("write command: %w", err)
	}
	return out.Close()
}
