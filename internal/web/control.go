package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-keys/internal/codeset"
	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
	"github.com/sweeney/gpio-keys/internal/mqtt"
)

// PowerResult is the reply of the power endpoints.
type PowerResult struct {
	Action string   `json:"action"`
	Woken  []string `json:"woken,omitempty"`
}

func paramType(c *fiber.Ctx) (input.Type, error) {
	t, err := input.ParseType(c.Params("type"))
	if err != nil {
		return 0, fiber.NewError(http.StatusNotFound, err.Error())
	}
	return t, nil
}

// handleList replies with one of the code sets of the requested type as a
// text list such as "5,9-11".
func (s *Server) handleList(pick func(keys.Sets) codeset.Set) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := paramType(c)
		if err != nil {
			return err
		}
		sets, err := s.ctl.Snapshot(t)
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(codeset.Format(pick(sets)) + "\n")
	}
}

func (s *Server) handleSetDisabled(c *fiber.Ctx) error {
	t, err := paramType(c)
	if err != nil {
		return err
	}
	set, err := codeset.Parse(string(c.Body()), t.Count())
	if err != nil {
		return err
	}
	if err := s.ctl.SetDisabled(t, set); err != nil {
		return err
	}
	log.WithFields(log.Fields{"type": t, "disabled": codeset.Format(set)}).Info("disabled set changed")
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) handleWakeup(c *fiber.Ctx) error {
	t, err := paramType(c)
	if err != nil {
		return err
	}
	code, err := strconv.ParseUint(c.Params("code"), 0, 16)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("invalid code %q", c.Params("code")))
	}
	var enable bool
	switch c.Params("action") {
	case "enable":
		enable = true
	case "disable":
	default:
		return fiber.NewError(http.StatusNotFound, fmt.Sprintf("unknown action %q", c.Params("action")))
	}
	if err := s.ctl.SetWakeup(t, uint16(code), enable); err != nil {
		return err
	}
	log.WithFields(log.Fields{"type": t, "code": code, "wake": enable}).Info("wake changed")
	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) handlePower(c *fiber.Ctx) error {
	action := strings.ToLower(c.Params("action"))
	var (
		event string
		woken []string
		err   error
	)
	switch action {
	case "suspend":
		event, err = mqtt.EventSuspend, s.ctl.Suspend()
	case "resume":
		event, err = mqtt.EventResume, s.ctl.Resume()
	case "syscore-resume":
		event = mqtt.EventResume
		woken, err = s.ctl.SyscoreResume()
	default:
		return fiber.NewError(http.StatusNotFound, fmt.Sprintf("unknown power action %q", action))
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"action": action, "woken": woken}).Info("power transition")
	if s.opts.OnPower != nil {
		s.opts.OnPower(event, woken)
	}
	return c.JSON(PowerResult{Action: action, Woken: woken})
}
