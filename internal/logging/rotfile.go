package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingFile appends log records to dir/name and rotates by size. When the
// next write would push the current file past maxBytes, it is renamed to
// name-YYYYMMDD-HHMMSS.nnnnnnnnn.ext and a fresh file is opened.
type RotatingFile struct {
	dir      string
	name     string
	maxBytes int64
	now      func() time.Time

	mu      sync.Mutex
	f       *os.File
	curSize int64
}

func NewRotatingFile(dir, name string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &RotatingFile{dir: dir, name: name, maxBytes: maxBytes, now: time.Now}
}

// Path is the file currently written to.
func (w *RotatingFile) Path() string { return filepath.Join(w.dir, w.name) }

// Write implements io.Writer; slog handlers call it once per record.
func (w *RotatingFile) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	if w.curSize > 0 && w.curSize+int64(len(b)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(b)
	w.curSize += int64(n)
	return n, err
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	_ = w.f.Close()
	w.f = nil

	ext := filepath.Ext(w.name)
	base := strings.TrimSuffix(w.name, ext)
	ts := w.now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", base, ts, ext))
	if err := os.Rename(w.Path(), rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	return w.ensureOpen()
}

// Close closes the current file handle. A later Write reopens it.
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
