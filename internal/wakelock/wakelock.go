// Package wakelock keeps the system awake while key reports are in flight,
// using the kernel's user space wake lock interface in /sys/power.
package wakelock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultDir is where the kernel exposes wake_lock and wake_unlock.
const DefaultDir = "/sys/power"

// Sysfs acquires named wake locks by writing to DIR/wake_lock and releases
// them through DIR/wake_unlock.
type Sysfs struct {
	dir string

	mu   sync.Mutex
	held map[string]int
}

// NewSysfs checks that dir provides the wake lock files.
func NewSysfs(dir string) (*Sysfs, error) {
	for _, f := range []string{"wake_lock", "wake_unlock"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return nil, fmt.Errorf("wake lock interface: %w", err)
		}
	}
	return &Sysfs{dir: dir, held: map[string]int{}}, nil
}

// Acquire takes the wake lock name.
func (s *Sysfs) Acquire(name string) error {
	name = sanitize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write("wake_lock", name); err != nil {
		return err
	}
	s.held[name]++
	return nil
}

// Release drops the wake lock name.
func (s *Sysfs) Release(name string) error {
	name = sanitize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held[name] == 0 {
		return fmt.Errorf("wake lock %s not held", name)
	}
	if err := s.write("wake_unlock", name); err != nil {
		return err
	}
	s.held[name]--
	if s.held[name] == 0 {
		delete(s.held, name)
	}
	return nil
}

// Held returns the number of names currently held.
func (s *Sysfs) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

func (s *Sysfs) write(file, name string) error {
	f, err := os.OpenFile(filepath.Join(s.dir, file), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	_, werr := f.WriteString(name)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write %s: %w", file, werr)
	}
	return cerr
}

// sanitize makes name a single token; the kernel splits on whitespace.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, name)
}

// Nop is used where the platform has no wake lock interface.
type Nop struct{}

func (Nop) Acquire(string) error { return nil }
func (Nop) Release(string) error { return nil }
