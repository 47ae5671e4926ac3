package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-keys/internal/config"
	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
	"github.com/sweeney/gpio-keys/internal/mqtt"
	"github.com/sweeney/gpio-keys/internal/status"
	"github.com/sweeney/gpio-keys/internal/uinput"
	"github.com/sweeney/gpio-keys/internal/wakelock"
	"github.com/sweeney/gpio-keys/internal/web"
)

func setupLogging(cfg *config.Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(cfg.Log.Output)
	log.SetLevel(cfg.Log.LevelFlag)
}

func openChip(cfg *config.Config) (gpio.Chip, error) {
	switch cfg.Backend {
	case "rpio":
		return gpio.NewRpioChip(cfg.Poll, cfg.PinctrlBias)
	default:
		return gpio.NewCdevChip(cfg.Chip, cfg.PinctrlBias)
	}
}

func openWakeLock(cfg *config.Config) keys.WakeLock {
	if cfg.WakeLock == "" {
		return wakelock.Nop{}
	}
	wl, err := wakelock.NewSysfs(cfg.WakeLock)
	if err != nil {
		log.WithError(err).Warn("wake locks unavailable, suspend will not wait for reports")
		return wakelock.Nop{}
	}
	return wl
}

func runDaemon(cfg *config.Config) error {
	if err := cfg.LoadConfig(); err != nil {
		return err
	}
	setupLogging(cfg)
	defer func() {
		if cfg.Log.Output != os.Stderr && cfg.Log.Output != os.Stdout {
			_ = cfg.Log.Output.Close()
		}
	}()

	chip, err := openChip(cfg)
	if err != nil {
		return fmt.Errorf("open %s chip %s: %w", cfg.Backend, cfg.Chip, err)
	}
	defer chip.Close()

	publisher := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Connection,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
	})
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Instance:    cfg.Name,
		Chip:        cfg.Chip,
		Backend:     cfg.Backend,
		Resume:      cfg.Strategy.String(),
		Autorepeat:  cfg.Autorepeat,
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Connection,
		HTTPPort:    cfg.Webserver.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	sinks := input.Multi{mqtt.NewSink(publisher, cfg.Name, 0), tracker}
	dev, err := uinput.New(cfg.Name, uinput.CapabilitiesOf(cfg.Descriptors), cfg.Autorepeat)
	if err != nil {
		log.WithError(err).Warn("no virtual input device, events go to MQTT only")
	} else {
		defer dev.Destroy()
		sinks = append(input.Multi{dev}, sinks...)
	}

	driver, err := keys.New(cfg.Descriptors, keys.Options{
		Name:     cfg.Name,
		Chip:     chip,
		Sink:     sinks,
		Logger:   log.WithField("instance", cfg.Name),
		Wake:     openWakeLock(cfg),
		Strategy: cfg.Strategy,
		Workers:  cfg.Workers,
	})
	if err != nil {
		if gpio.IsTemporary(err) {
			return fmt.Errorf("lines not available yet, retry later: %w", err)
		}
		return err
	}
	defer driver.Close()
	tracker.SetSource(driver)

	// The daemon itself is the consumer of the event path.
	if err := driver.OpenConsumer(); err != nil {
		log.WithError(err).Warn("open consumer")
	}
	defer driver.CloseConsumer()

	// Publish startup event with full status snapshot
	publishStatus(publisher, publisher, tracker, mqtt.EventStartup, "", true)

	// Start HTTP control server
	if cfg.Webserver.Addr != "" {
		srv := web.New(tracker, driver, web.Options{
			Version: version,
			OnPower: func(event string, woken []string) {
				publishStatus(publisher, publisher, tracker, event, strings.Join(woken, ","), false)
			},
		})
		go func() {
			if err := srv.Listen(cfg.Webserver.Addr); err != nil {
				log.WithError(err).Error("http server")
			}
		}()
		defer srv.Shutdown()
		log.WithField("addr", cfg.Webserver.Addr).Info("http control server listening")
	}

	log.WithFields(log.Fields{
		"lines":     len(cfg.Descriptors),
		"chip":      cfg.Chip,
		"backend":   cfg.Backend,
		"broker":    cfg.MQTT.Connection,
		"heartbeat": cfg.MQTT.Heartbeat,
		"resume":    cfg.Strategy,
	}).Info("started")

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	return runLoop(driver, publisher, publisher, tracker, heartbeat, sigCh)
}

// powerControl is the driver surface used by the signal handlers.
type powerControl interface {
	Suspend() error
	Resume() error
	SyscoreResume() ([]string, error)
	Strategy() keys.ResumeStrategy
}

// runLoop waits for signals and heartbeat ticks. SIGINT and SIGTERM end the
// loop after a SHUTDOWN event; SIGUSR1 suspends and SIGUSR2 resumes.
func runLoop(ctl powerControl, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			switch s {
			case syscall.SIGUSR1:
				if err := ctl.Suspend(); err != nil {
					log.WithError(err).Warn("suspend refused")
					continue
				}
				publishStatus(publisher, mqttStatus, tracker, mqtt.EventSuspend, "", false)

			case syscall.SIGUSR2:
				var woken []string
				var err error
				if ctl.Strategy() == keys.ResumeSyscore {
					woken, err = ctl.SyscoreResume()
				} else {
					err = ctl.Resume()
				}
				if err != nil {
					log.WithError(err).Error("resume failed")
					continue
				}
				publishStatus(publisher, mqttStatus, tracker, mqtt.EventResume, strings.Join(woken, ","), false)

			default:
				log.WithField("signal", s).Info("shutting down")
				publishStatus(publisher, mqttStatus, tracker, mqtt.EventShutdown, signalName(s), true)
				return nil
			}

		case <-heartbeat:
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
			}
			publishStatus(publisher, mqttStatus, tracker, mqtt.EventHeartbeat, "", false)
		}
	}
}

// publishStatus publishes a system event carrying a full status snapshot.
// Publish failures are logged and never stop the daemon.
func publishStatus(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string, retained bool) {
	ev := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		snap := tracker.Snapshot()
		ev.Timestamp = snap.Now
		ev.RawPayload = status.FormatStatusEvent(snap, event, reason)
		if event == mqtt.EventHeartbeat {
			log.WithFields(log.Fields{
				"uptime": snap.Uptime().Truncate(time.Second),
				"power":  snap.Power,
				"holds":  snap.Holds,
			}).Info("heartbeat")
		}
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.WithError(err).WithField("event", event).Warn("failed to publish system event")
		return
	}
	log.WithField("event", event).Debug("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
