package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/unamentis/kbharness/internal/harness"
)

// SuiteWatcher monitors a suite YAML file for changes and calls a callback
// when the file is modified, so a long-running harness can pick up edited
// test cases without a restart. It uses polling (not fsnotify) to keep
// dependencies minimal.
type SuiteWatcher struct {
	path     string
	preset   Preset
	interval time.Duration
	onChange func(old, new *harness.TestSuite)

	mu       sync.Mutex
	current  *harness.TestSuite
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [SuiteWatcher].
type WatcherOption func(*SuiteWatcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *SuiteWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewSuiteWatcher creates a suite file watcher. Cases without explicit
// validation settings resolve against defaultPreset, as in [LoadSuite]. The
// watcher loads the initial suite immediately and starts polling in a
// background goroutine.
func NewSuiteWatcher(path string, defaultPreset Preset, onChange func(old, new *harness.TestSuite), opts ...WatcherOption) (*SuiteWatcher, error) {
	w := &SuiteWatcher{
		path:     path,
		preset:   defaultPreset,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Load initial suite.
	suite, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: suite watcher initial load: %w", err)
	}
	w.current = suite
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid suite.
func (w *SuiteWatcher) Current() *harness.TestSuite {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *SuiteWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// poll runs in a background goroutine, checking the suite file periodically.
func (w *SuiteWatcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the suite file and, if it has changed and is valid, calls
// onChange and updates the current suite.
func (w *SuiteWatcher) check() {
	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("suite watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	// Mtime changed; read and hash.
	suite, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("suite watcher: failed to load suite", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()

	if hash == w.lastHash {
		// File was touched but content is identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}

	old := w.current
	w.current = suite
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("suite watcher: suite reloaded", "path", w.path, "suite", suite.ID)

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, suite)
	}
}

// loadAndHash reads the suite file, parses + validates it, and returns the
// suite alongside the file's SHA-256 hash and modification time. If the
// suite is invalid, it returns an error (the caller should keep the old one).
func (w *SuiteWatcher) loadAndHash() (*harness.TestSuite, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	f, err := os.Open(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	// Read full file into memory for hashing + parsing.
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	hash := sha256.Sum256(data)

	suite, err := LoadSuiteFromReader(bytes.NewReader(data), w.preset)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	return suite, hash, info.ModTime(), nil
}
