package manifest

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestWatcher_ReportsManifestChanges(t *testing.T) {
	root := t.TempDir()
	changes := make(chan Change, 16)
	w := NewWatcher(root, func(c Change) { changes <- c }, WithDebounce(20*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	manifest := filepath.Join(root, "A.toml")
	if err := os.WriteFile(manifest, []byte(raiseCapTOML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if slices.Contains(c.Paths, filepath.Join(root, "notes.txt")) {
				t.Fatalf("expected non-manifest file ignored, got %v", c.Paths)
			}
			if slices.Contains(c.Paths, manifest) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for change to %s", manifest)
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher(t.TempDir(), func(Change) {})
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_ = w.Stop()

	if err := NewWatcher(filepath.Join(t.TempDir(), "missing"), func(Change) {}).Start(); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestWithDebounce_IgnoresNonPositive(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		w := NewWatcher(t.TempDir(), func(Change) {}, WithDebounce(d))
		if w.debounce != DefaultDebounce {
			t.Fatalf("WithDebounce(%v): expected default, got %v", d, w.debounce)
		}
		if err := w.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := w.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
	if w := NewWatcher(t.TempDir(), func(Change) {}, WithDebounce(time.Second)); w.debounce != time.Second {
		t.Fatalf("expected 1s debounce, got %v", w.debounce)
	}
}
