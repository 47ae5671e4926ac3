package wakelock

import (
	"os"
	"path/filepath"
	"testing"
)

func newFakeSysfs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{"wake_lock", "wake_unlock"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestSysfsAcquireRelease(t *testing.T) {
	dir := newFakeSysfs(t)
	s, err := NewSysfs(dir)
	if err != nil {
		t.Fatalf("NewSysfs: %v", err)
	}

	if err := s.Acquire("gpio keys.3"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "wake_lock")); got != "gpio_keys.3" {
		t.Errorf("wake_lock: got %q", got)
	}
	if s.Held() != 1 {
		t.Errorf("held: got %d, want 1", s.Held())
	}

	if err := s.Release("gpio keys.3"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "wake_unlock")); got != "gpio_keys.3" {
		t.Errorf("wake_unlock: got %q", got)
	}
	if s.Held() != 0 {
		t.Errorf("held: got %d, want 0", s.Held())
	}
}

func TestSysfsReleaseWithoutAcquire(t *testing.T) {
	s, _ := NewSysfs(newFakeSysfs(t))
	if err := s.Release("never"); err == nil {
		t.Error("expected error releasing a lock that is not held")
	}
}

func TestNewSysfsMissing(t *testing.T) {
	if _, err := NewSysfs(t.TempDir()); err == nil {
		t.Error("expected error for a directory without wake lock files")
	}
}
