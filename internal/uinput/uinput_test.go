package uinput

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
)

func TestCapabilitiesOf(t *testing.T) {
	caps := CapabilitiesOf([]keys.Descriptor{
		{Type: input.TypeKey, Code: 116},
		{Type: input.TypeKey, Code: 115},
		{Type: input.TypeKey, Code: 116},
		{Type: input.TypeSwitch, Code: 0},
	})

	want := Capabilities{
		input.TypeKey:    {116, 115},
		input.TypeSwitch: {0},
	}
	if !reflect.DeepEqual(caps, want) {
		t.Errorf("got %v, want %v", caps, want)
	}
}

func TestDevice(t *testing.T) {
	if _, err := os.Stat("/dev/uinput"); err != nil {
		t.Skip("/dev/uinput not available")
	}
	dev, err := New("gpio-keys-test", Capabilities{input.TypeKey: {30}}, true)
	if err != nil {
		t.Skipf("cannot create uinput device: %v", err)
	}

	if err := dev.Emit(input.Event{Time: time.Now(), Type: input.TypeKey, Code: 30, Value: 1}); err != nil {
		t.Errorf("Emit: %v", err)
	}
	if err := dev.Sync(); err != nil {
		t.Errorf("Sync: %v", err)
	}
	if err := dev.Destroy(); err != nil {
		t.Errorf("Destroy: %v", err)
	}
	if err := dev.Emit(input.Event{Type: input.TypeKey, Code: 30}); err != ErrDestroyed {
		t.Errorf("Emit after Destroy: got %v, want ErrDestroyed", err)
	}
	if err := dev.Destroy(); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
}
