// Package config loads the daemon configuration and line table from YAML.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
)

// DefaultDebounceMs is used for lines that do not set debounce_ms.
const DefaultDebounceMs = 5

// Config is the daemon configuration. Fields tagged `yaml:"-"` are derived
// by LoadConfig from their raw counterparts.
type Config struct {
	Name       string `yaml:"name"`
	Chip       string `yaml:"chip"`
	Backend    string `yaml:"backend"`
	PollMs     int    `yaml:"poll_ms"`
	Autorepeat bool   `yaml:"autorepeat"`
	Resume     string `yaml:"resume"`
	WakeLock   string `yaml:"wake_lock"`
	Workers    int    `yaml:"workers"`

	Pinctrl   *PinctrlConfig  `yaml:"pinctrl"`
	Lines     []LineConfig    `yaml:"lines"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Webserver WebserverConfig `yaml:"webserver"`
	Log       LogConfig       `yaml:"log"`

	Flag        FlagConfig          `yaml:"-"`
	Poll        time.Duration       `yaml:"-"`
	Strategy    keys.ResumeStrategy `yaml:"-"`
	PinctrlBias *gpio.Pinctrl       `yaml:"-"`
	Descriptors []keys.Descriptor   `yaml:"-"`
}

// LineConfig is one entry of the line table.
type LineConfig struct {
	Label            string `yaml:"label"`
	GPIO             *int   `yaml:"gpio"`
	Code             *int   `yaml:"code"`
	Type             string `yaml:"type"`
	Sensing          string `yaml:"sensing"`
	ActiveLow        bool   `yaml:"active_low"`
	DebounceMs       *int   `yaml:"debounce_ms"`
	CanDisable       bool   `yaml:"can_disable"`
	Wakeup           bool   `yaml:"wakeup"`
	Value            int32  `yaml:"value"`
	Bias             string `yaml:"bias"`
	HardwareDebounce bool   `yaml:"hardware_debounce"`
}

// PinctrlConfig names the bias applied in each pinmux state.
type PinctrlConfig struct {
	Active  string `yaml:"active"`
	Suspend string `yaml:"suspend"`
}

// MQTTConfig defines the broker connection.
type MQTTConfig struct {
	Connection   string        `yaml:"connection"`
	Topic        string        `yaml:"topic"`
	ClientID     string        `yaml:"client_id"`
	HeartbeatInt int           `yaml:"heartbeat"`
	Heartbeat    time.Duration `yaml:"-"`
}

// WebserverConfig defines the control surface listener.
type WebserverConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig defines the log level and destination.
type LogConfig struct {
	Level     string         `yaml:"level"`
	File      string         `yaml:"file"`
	LevelFlag log.Level      `yaml:"-"`
	Output    io.WriteCloser `yaml:"-"`
}

// FlagConfig holds command line values that override the file.
type FlagConfig struct {
	ConfigFile string
	LogLevel   string
	Broker     string
	HTTPAddr   string
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Name:    "gpio-keys",
		Chip:    "gpiochip0",
		Backend: "cdev",
		PollMs:  1,
		Resume:  "device",
		MQTT: MQTTConfig{
			Connection:   "tcp://127.0.0.1:1883",
			Topic:        "gpio-keys",
			ClientID:     "gpio-keys",
			HeartbeatInt: 900,
		},
		Webserver: WebserverConfig{Addr: ":80"},
		Log:       LogConfig{Level: "info", File: "stderr"},
	}
}

// LoadConfig reads Flag.ConfigFile, applies flag overrides and derives the
// runtime fields.
func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}
	c.applyFlags()
	if err := c.setLogConfig(); err != nil {
		return fmt.Errorf("unable to set up logging: %w", err)
	}
	return c.Process()
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return c.Decode(file)
}

// Decode reads YAML from r into c.
func (c *Config) Decode(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.SetStrict(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("%w: %w", keys.ErrConfig, err)
	}
	return nil
}

func (c *Config) applyFlags() {
	if c.Flag.LogLevel != "" {
		c.Log.Level = c.Flag.LogLevel
	}
	if c.Flag.Broker != "" {
		c.MQTT.Connection = c.Flag.Broker
	}
	if c.Flag.HTTPAddr != "" {
		c.Webserver.Addr = c.Flag.HTTPAddr
	}
}

func (c *Config) setLogConfig() (err error) {
	if c.Log.LevelFlag, err = log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.File {
	case "", "stderr":
		c.Log.Output = os.Stderr
	case "stdout":
		c.Log.Output = os.Stdout
	default:
		if c.Log.Output, err = os.OpenFile(c.Log.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return err
		}
	}
	return nil
}

// Process validates the raw values and fills the derived fields.
func (c *Config) Process() error {
	if c.Backend != "cdev" && c.Backend != "rpio" {
		return fmt.Errorf("%w: unknown backend %q", keys.ErrConfig, c.Backend)
	}
	if c.PollMs <= 0 {
		return fmt.Errorf("%w: poll_ms must be positive", keys.ErrConfig)
	}
	c.Poll = time.Duration(c.PollMs) * time.Millisecond
	c.MQTT.Heartbeat = time.Duration(c.MQTT.HeartbeatInt) * time.Second

	var err error
	if c.Strategy, err = keys.ParseResumeStrategy(c.Resume); err != nil {
		return err
	}

	c.PinctrlBias = nil
	if c.Pinctrl != nil {
		var p gpio.Pinctrl
		if p.Active, err = gpio.ParseBias(c.Pinctrl.Active); err != nil {
			return fmt.Errorf("%w: pinctrl active: %w", keys.ErrConfig, err)
		}
		if p.Suspend, err = gpio.ParseBias(c.Pinctrl.Suspend); err != nil {
			return fmt.Errorf("%w: pinctrl suspend: %w", keys.ErrConfig, err)
		}
		c.PinctrlBias = &p
	}

	c.Descriptors = c.Descriptors[:0]
	for i, lc := range c.Lines {
		if lc.GPIO == nil {
			log.WithFields(log.Fields{"index": i, "line": lc.Label}).Warn("line has no gpio, skipped")
			continue
		}
		d, err := lc.descriptor()
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", i, lc.Label, err)
		}
		c.Descriptors = append(c.Descriptors, d)
	}
	if len(c.Descriptors) == 0 {
		return fmt.Errorf("%w: no usable lines", keys.ErrConfig)
	}
	return nil
}

func (lc LineConfig) descriptor() (keys.Descriptor, error) {
	if lc.Code == nil {
		return keys.Descriptor{}, fmt.Errorf("%w: missing code", keys.ErrConfig)
	}
	t, err := input.ParseType(lc.Type)
	if err != nil {
		return keys.Descriptor{}, fmt.Errorf("%w: %w", keys.ErrConfig, err)
	}
	if *lc.Code < 0 || *lc.Code >= t.Count() {
		return keys.Descriptor{}, fmt.Errorf("%w: code %d out of range for %v", keys.ErrConfig, *lc.Code, t)
	}
	sensing, err := keys.ParseSensing(lc.Sensing)
	if err != nil {
		return keys.Descriptor{}, err
	}
	bias, err := gpio.ParseBias(lc.Bias)
	if err != nil {
		return keys.Descriptor{}, fmt.Errorf("%w: %w", keys.ErrConfig, err)
	}
	debounce := DefaultDebounceMs
	if lc.DebounceMs != nil {
		debounce = *lc.DebounceMs
	}

	d := keys.Descriptor{
		Label:            lc.Label,
		Code:             uint16(*lc.Code),
		Type:             t,
		Sensing:          sensing,
		ActiveLow:        lc.ActiveLow,
		Debounce:         time.Duration(debounce) * time.Millisecond,
		CanDisable:       lc.CanDisable,
		Wakeup:           lc.Wakeup,
		Value:            lc.Value,
		Offset:           *lc.GPIO,
		Bias:             bias,
		HardwareDebounce: lc.HardwareDebounce,
	}
	return d, d.Validate()
}
