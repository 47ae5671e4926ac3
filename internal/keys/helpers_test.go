package keys

import (
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sweeney/gpio-keys/internal/clock"
	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
)

type harness struct {
	d    *Driver
	chip *gpio.FakeChip
	rec  *input.Recorder
	clk  *clock.Fake
	wake *fakeWake
	hook *test.Hook
}

func newHarness(t *testing.T, descs []Descriptor, mods ...func(*Options)) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	h := &harness{
		chip: gpio.NewFakeChip(),
		rec:  input.NewRecorder(),
		clk:  clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		wake: &fakeWake{},
		hook: hook,
	}
	opts := Options{
		Name:   "test",
		Chip:   h.chip,
		Sink:   h.rec,
		Clock:  h.clk,
		Logger: log.NewEntry(logger),
		Wake:   h.wake,
	}
	for _, m := range mods {
		m(&opts)
	}
	d, err := New(descs, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	h.d = d
	return h
}

// set drives the raw level of a line and waits for any immediate report.
func (h *harness) set(offset int, level bool) {
	h.chip.SetLevel(offset, level)
	h.d.Flush()
}

// advance moves the clock and waits for the reports it caused.
func (h *harness) advance(d time.Duration) {
	h.clk.Advance(d)
	h.d.Flush()
}

// events renders the delivered events as "type:code=value".
func (h *harness) events() []string {
	var out []string
	for _, ev := range h.rec.Events() {
		out = append(out, fmt.Sprintf("%v:%d=%d", ev.Type, ev.Code, ev.Value))
	}
	return out
}

func (h *harness) expectEvents(t *testing.T, want ...string) {
	t.Helper()
	got := h.events()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events: got %v, want %v", got, want)
		}
	}
}

func key(code uint16, offset int) Descriptor {
	return Descriptor{
		Label:      fmt.Sprintf("key%d", code),
		Code:       code,
		Type:       input.TypeKey,
		Offset:     offset,
		Debounce:   5 * time.Millisecond,
		CanDisable: true,
	}
}

type fakeWake struct {
	mu       sync.Mutex
	held     map[string]int
	acquired int
	released int
}

func (w *fakeWake) Acquire(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held == nil {
		w.held = map[string]int{}
	}
	w.held[name]++
	w.acquired++
	return nil
}

func (w *fakeWake) Release(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held[name] == 0 {
		return fmt.Errorf("release of %s without acquire", name)
	}
	w.held[name]--
	w.released++
	return nil
}

func (w *fakeWake) counts() (acquired, released int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired, w.released
}
