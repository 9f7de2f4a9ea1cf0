package collector

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHotplugWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	w, err := NewHotplugWatcher(dir, 50*time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("NewHotplugWatcher() error = %v", err)
	}
	w.Start()
	defer w.Stop()

	for _, name := range []string{"BAT1", "ucsi-source-psy-USBC000:001"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}

	select {
	case <-w.Changed():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled after creating supplies")
	}
	select {
	case <-w.Changed():
		t.Fatal("burst signalled more than once")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHotplugWatcher_Removal(t *testing.T) {
	dir := t.TempDir()
	bat := filepath.Join(dir, "BAT0")
	if err := os.Mkdir(bat, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	w, err := NewHotplugWatcher(dir, 10*time.Millisecond, discardLogger())
	if err != nil {
		t.Fatalf("NewHotplugWatcher() error = %v", err)
	}
	w.Start()
	defer w.Stop()

	if err := os.Remove(bat); err != nil {
		t.Fatalf("remove: %v", err)
	}
	select {
	case <-w.Changed():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled after removing supply")
	}
}

func TestHotplugWatcher_MissingDir(t *testing.T) {
	if _, err := NewHotplugWatcher(filepath.Join(t.TempDir(), "absent"), 0, discardLogger()); err == nil {
		t.Fatal("NewHotplugWatcher() error = nil, want error for missing dir")
	}
}

func TestHotplugWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewHotplugWatcher(t.TempDir(), 0, discardLogger())
	if err != nil {
		t.Fatalf("NewHotplugWatcher() error = %v", err)
	}
	if w.debounce != DefaultHotplugDebounce {
		t.Fatalf("debounce = %v, want %v", w.debounce, DefaultHotplugDebounce)
	}
	w.Stop()
}
