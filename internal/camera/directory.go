package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Directory captures the newest JPEG written into a directory. It suits
// setups where an external program (a webcam daemon, a phone sync folder)
// drops stills on disk.
type Directory struct {
	dir     string
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	latest  string
	modTime time.Time
	good    []byte
	closed  bool
	done    chan struct{}
}

// NewDirectory starts watching dir. Existing JPEGs are scanned once so the
// camera is ready immediately if the directory already holds a frame.
func NewDirectory(dir string) (*Directory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve camera directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(abs); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch camera directory %s: %w", abs, err)
	}

	d := &Directory{dir: abs, watcher: watcher, done: make(chan struct{})}
	d.scan()
	go d.watchLoop()
	return d, nil
}

// Capture reads the newest JPEG. Before the first file appears it fails with
// "camera not ready"; after Close it fails with "camera closed". A file that
// does not parse as JPEG yet, usually one still being written, yields the
// last complete frame instead.
func (d *Directory) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, Failure("cancelled", err)
	}
	d.mu.RLock()
	path, closed := d.latest, d.closed
	d.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if path == "" {
		return nil, ErrNotReady
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Failure("read frame", err)
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		d.mu.RLock()
		good := d.good
		d.mu.RUnlock()
		if good == nil {
			return nil, Failure("incomplete frame", err)
		}
		return good, nil
	}

	d.mu.Lock()
	d.good = data
	d.mu.Unlock()
	return data, nil
}

// Latest returns the path of the frame the next capture will read.
func (d *Directory) Latest() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

// Close stops the watcher. Safe to call more than once.
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.watcher.Close()
	<-d.done
	return err
}

func (d *Directory) watchLoop() {
	defer close(d.done)
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !isJPEG(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				d.consider(event.Name)
			} else if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				d.forget(event.Name)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Camera directory watcher error", "dir", d.dir, "error", err)
		}
	}
}

func (d *Directory) scan() {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		slog.Warn("Camera directory scan failed", "dir", d.dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isJPEG(e.Name()) {
			continue
		}
		d.consider(filepath.Join(d.dir, e.Name()))
	}
}

// consider makes path the latest frame if it is at least as new as the
// current one.
func (d *Directory) consider(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == "" || path == d.latest || !info.ModTime().Before(d.modTime) {
		d.latest = path
		d.modTime = info.ModTime()
	}
}

func (d *Directory) forget(path string) {
	d.mu.Lock()
	if d.latest != path {
		d.mu.Unlock()
		return
	}
	d.latest = ""
	d.modTime = time.Time{}
	d.mu.Unlock()
	d.scan()
}

func isJPEG(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}
