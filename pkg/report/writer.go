package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	"github.com/cgedge/slipfill/pkg/logger"
	"github.com/cgedge/slipfill/pkg/navigator"
)

// Writer keeps the report current on disk while a run progresses.
type Writer struct {
	mu        sync.Mutex
	path      string // report file; empty keeps the report in memory
	assetsDir string // failure artifacts; empty disables them
	report    *Report

	flushFailed bool // a write error was already logged
}

// NewWriter creates a Writer. Artifacts for the run are stored under
// assetsDir/<run id>.
func NewWriter(path, assetsDir string, r *Report) *Writer {
	w := &Writer{path: path, report: r}
	if assetsDir != "" {
		w.assetsDir = filepath.Join(assetsDir, r.RunID)
	}
	return w
}

// Start marks the run as started.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.report.Status = core.StatusRunning
	w.report.StartTime = time.Now()
	w.flushLocked()
}

// SetNavigation records the navigation outcome.
func (w *Writer) SetNavigation(res *navigator.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.report.Navigation = res
	w.flushLocked()
}

// ItemStart marks an item as running.
func (w *Writer) ItemStart(idx int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if idx < 0 || idx >= len(w.report.Items) {
		return
	}
	now := time.Now()
	it := &w.report.Items[idx]
	it.Status = core.StatusRunning
	it.StartTime = &now
	w.flushLocked()
}

// ItemEnd records the outcome of an item.
func (w *Writer) ItemEnd(idx int, u ItemUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if idx < 0 || idx >= len(w.report.Items) {
		return
	}
	it := &w.report.Items[idx]
	it.Status = u.Status
	it.PropTab = u.PropTab
	it.Matcher = u.Matcher
	it.Element = u.Element
	it.Error = u.Error
	it.Artifacts = u.Artifacts
	if it.StartTime != nil {
		d := time.Since(*it.StartTime).Milliseconds()
		it.Duration = &d
	}
	w.flushLocked()
}

// End marks the run as complete. Items still pending are marked skipped.
func (w *Writer) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.report.Items {
		if !w.report.Items[i].Status.IsTerminal() {
			w.report.Items[i].Status = core.StatusSkipped
		}
	}
	now := time.Now()
	w.report.EndTime = &now
	if !w.report.StartTime.IsZero() {
		d := now.Sub(w.report.StartTime).Milliseconds()
		w.report.Duration = &d
	}
	w.report.Status = runStatus(w.report.Items)
	w.flushLocked()
}

// Report returns the current report (for reading).
func (w *Writer) Report() *Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.report
}

// Path returns the report file path.
func (w *Writer) Path() string {
	return w.path
}

// SaveScreenshot saves a screenshot for an item. The returned attachment's
// path is relative to the report directory.
func (w *Writer) SaveScreenshot(idx int, data []byte) (core.Attachment, error) {
	return w.saveAsset(core.NewScreenshotAttachment(fmt.Sprintf("item-%03d-screenshot.png", idx), data))
}

// SaveSnapshot saves a serialized DOM for an item.
func (w *Writer) SaveSnapshot(idx int, data []byte) (core.Attachment, error) {
	return w.saveAsset(core.NewSnapshotAttachment(fmt.Sprintf("item-%03d-snapshot.html", idx), data))
}

// saveAsset writes a.Body under the assets directory and returns a with its
// path rewritten and the body dropped.
func (w *Writer) saveAsset(a core.Attachment) (core.Attachment, error) {
	if w.assetsDir == "" {
		return a, fmt.Errorf("artifacts disabled")
	}
	if err := ensureDir(w.assetsDir); err != nil {
		return a, err
	}
	path := filepath.Join(w.assetsDir, a.Path)
	if err := os.WriteFile(path, a.Body, 0o644); err != nil {
		return a, err
	}
	a.Body = nil
	a.Path = path
	if w.path != "" {
		if rel, err := filepath.Rel(filepath.Dir(w.path), path); err == nil {
			a.Path = rel
		}
	}
	return a, nil
}

// flushLocked writes the report while holding the lock. The in-memory
// report stays authoritative; only the first write error is logged.
func (w *Writer) flushLocked() {
	w.report.Summary = summarize(w.report.Items)
	if w.path == "" {
		return
	}
	if err := atomicWriteJSON(w.path, w.report); err != nil && !w.flushFailed {
		w.flushFailed = true
		logger.Warn("report %s not written: %v", w.path, err)
	}
}

// Written reports whether every flush so far reached the report file.
func (w *Writer) Written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path != "" && !w.flushFailed
}
