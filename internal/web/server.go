// Package web provides the HTTP status and control server for the gpio-keys
// daemon, and a client for it.
package web

import (
	"errors"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-keys/internal/codeset"
	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
	"github.com/sweeney/gpio-keys/internal/status"
)

// Controller is the driver surface exposed over HTTP.
type Controller interface {
	Snapshot(t input.Type) (keys.Sets, error)
	SetDisabled(t input.Type, set codeset.Set) error
	SetWakeup(t input.Type, code uint16, enable bool) error
	Suspend() error
	Resume() error
	SyscoreResume() ([]string, error)
}

// PowerFunc is called after a successful power transition requested over HTTP.
// event is "SUSPEND" or "RESUME"; woken lists the lines that woke the system.
type PowerFunc func(event string, woken []string)

// Options configures a Server.
type Options struct {
	Version string
	OnPower PowerFunc
}

// Server serves the status page and the control endpoints.
type Server struct {
	app     *fiber.App
	tracker *status.Tracker
	ctl     Controller
	opts    Options
}

// New creates a Server that reads state from tracker and applies control
// requests to ctl.
func New(tracker *status.Tracker, ctl Controller, opts Options) *Server {
	s := &Server{tracker: tracker, ctl: ctl, opts: opts}
	s.app = fiber.New(fiber.Config{
		AppName:               "gpio-keys",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s.app.Get("/", s.handleIndex)
	s.app.Get("/index.html", s.handleIndex)
	s.app.Get("/index.json", s.handleJSON)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/version", s.handleVersion)

	s.app.Get("/keys/:type", s.handleList(func(s keys.Sets) codeset.Set { return s.All }))
	s.app.Get("/disableable/:type", s.handleList(func(s keys.Sets) codeset.Set { return s.Disableable }))
	s.app.Get("/disabled/:type", s.handleList(func(s keys.Sets) codeset.Set { return s.Disabled }))
	s.app.Put("/disabled/:type", s.handleSetDisabled)
	s.app.Get("/wakeup/:type", s.handleList(func(s keys.Sets) codeset.Set { return s.Wakeup }))
	s.app.Post("/wakeup/:type/:code/:action", s.handleWakeup)
	s.app.Post("/power/:action", s.handlePower)
	return s
}

// Listen starts listening on addr. It blocks until the server is shut down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	snap := s.tracker.Snapshot()
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return renderHTML(c, snap)
}

func (s *Server) handleJSON(c *fiber.Ctx) error {
	snap := s.tracker.Snapshot()
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(status.FormatJSON(snap))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	host, _ := os.Hostname()

	snap := s.tracker.Snapshot()
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"power":          snap.Power.String(),
		"mqtt_connected": snap.MQTTConnected,
		"wake_holds":     snap.Holds,
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  m.Alloc / 1024 / 1024,
		"sys_memory_mb":  m.Sys / 1024 / 1024,
		"go_version":     runtime.Version(),
		"hostname":       host,
		"time":           time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version":     s.opts.Version,
		"description": "gpio-keys",
	})
}

// errorHandler maps driver errors to HTTP status codes and replies with the
// error text.
func errorHandler(c *fiber.Ctx, err error) error {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("web request failed")
	} else {
		log.WithError(err).WithField("path", c.Path()).Debug("web request rejected")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(code).SendString(err.Error())
}

func statusCode(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, keys.ErrConfig), errors.Is(err, codeset.ErrSyntax), errors.Is(err, codeset.ErrRange):
		return http.StatusBadRequest
	case errors.Is(err, keys.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, keys.ErrPolicy), errors.Is(err, keys.ErrWakeHeld):
		return http.StatusConflict
	case errors.Is(err, keys.ErrPinFault), errors.Is(err, keys.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
