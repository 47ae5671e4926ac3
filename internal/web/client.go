package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sweeney/gpio-keys/internal/codeset"
	"github.com/sweeney/gpio-keys/internal/input"
)

// Client talks to a running daemon's control server.
type Client struct {
	base    string
	timeout time.Duration
}

// NewClient creates a Client for the server at base, e.g. "http://127.0.0.1:80".
func NewClient(base string) *Client {
	return &Client{base: strings.TrimRight(base, "/"), timeout: 5 * time.Second}
}

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.Code, strings.TrimSpace(e.Body))
}

func (c *Client) do(a *fiber.Agent) ([]byte, error) {
	code, body, errs := a.Timeout(c.timeout).Bytes()
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if code < 200 || code > 299 {
		return nil, &StatusError{Code: code, Body: string(body)}
	}
	return body, nil
}

func (c *Client) list(path string, t input.Type) (codeset.Set, error) {
	body, err := c.do(fiber.Get(fmt.Sprintf("%s/%s/%s", c.base, path, t)))
	if err != nil {
		return nil, err
	}
	return codeset.Parse(string(body), t.Count())
}

// Keys returns every code of type t.
func (c *Client) Keys(t input.Type) (codeset.Set, error) { return c.list("keys", t) }

// Disabled returns the disabled codes of type t.
func (c *Client) Disabled(t input.Type) (codeset.Set, error) { return c.list("disabled", t) }

// Wakeup returns the wake-enabled codes of type t.
func (c *Client) Wakeup(t input.Type) (codeset.Set, error) { return c.list("wakeup", t) }

// SetDisabled replaces the disabled codes of type t.
func (c *Client) SetDisabled(t input.Type, set codeset.Set) error {
	a := fiber.Put(fmt.Sprintf("%s/disabled/%s", c.base, t)).
		ContentType(fiber.MIMETextPlain).
		BodyString(codeset.Format(set))
	_, err := c.do(a)
	return err
}

// SetWakeup enables or disables wake for code of type t.
func (c *Client) SetWakeup(t input.Type, code uint16, enable bool) error {
	action := "disable"
	if enable {
		action = "enable"
	}
	_, err := c.do(fiber.Post(fmt.Sprintf("%s/wakeup/%s/%d/%s", c.base, t, code, action)))
	return err
}

// Power requests a power transition: "suspend", "resume" or "syscore-resume".
func (c *Client) Power(action string) (PowerResult, error) {
	var res PowerResult
	body, err := c.do(fiber.Post(fmt.Sprintf("%s/power/%s", c.base, action)))
	if err != nil {
		return res, err
	}
	err = json.Unmarshal(body, &res)
	return res, err
}

// Status returns the raw status JSON.
func (c *Client) Status() ([]byte, error) {
	return c.do(fiber.Get(c.base + "/index.json"))
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

