package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/sweeney/gpio-keys/internal/codeset"
	"github.com/sweeney/gpio-keys/internal/config"
	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
	"github.com/sweeney/gpio-keys/internal/web"
)

// controlClient is the part of web.Client used by the client commands.
type controlClient interface {
	Keys(t input.Type) (codeset.Set, error)
	Disabled(t input.Type) (codeset.Set, error)
	Wakeup(t input.Type) (codeset.Set, error)
	SetDisabled(t input.Type, set codeset.Set) error
	SetWakeup(t input.Type, code uint16, enable bool) error
	Power(action string) (web.PowerResult, error)
}

func newClient(server string) controlClient {
	return web.NewClient(server)
}

func listCodes(w io.Writer, client controlClient, arg string) error {
	types := []input.Type{input.TypeKey, input.TypeSwitch}
	if arg != "" {
		t, err := input.ParseType(arg)
		if err != nil {
			return err
		}
		types = []input.Type{t}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCODES\tDISABLED\tWAKEUP")
	for _, t := range types {
		all, err := client.Keys(t)
		if err != nil {
			return err
		}
		disabled, err := client.Disabled(t)
		if err != nil {
			return err
		}
		wake, err := client.Wakeup(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t, orNone(all), orNone(disabled), orNone(wake))
	}
	return tw.Flush()
}

func orNone(s codeset.Set) string {
	if len(s) == 0 {
		return "-"
	}
	return codeset.Format(s)
}

func disableCodes(client controlClient, typ, list string) error {
	t, err := input.ParseType(typ)
	if err != nil {
		return err
	}
	set, err := codeset.Parse(list, t.Count())
	if err != nil {
		return err
	}
	return client.SetDisabled(t, set)
}

func setWakeup(client controlClient, typ, code, action string) error {
	t, err := input.ParseType(typ)
	if err != nil {
		return err
	}
	c, err := strconv.ParseUint(code, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid code %q: %w", code, err)
	}
	switch action {
	case "enable":
		return client.SetWakeup(t, uint16(c), true)
	case "disable":
		return client.SetWakeup(t, uint16(c), false)
	}
	return fmt.Errorf("unknown wakeup action %q, want enable or disable", action)
}

func power(w io.Writer, client controlClient, action string) error {
	res, err := client.Power(action)
	if err != nil {
		return err
	}
	if len(res.Woken) > 0 {
		fmt.Fprintf(w, "%s: woken by %v\n", res.Action, res.Woken)
		return nil
	}
	fmt.Fprintln(w, res.Action)
	return nil
}

// printState brings the configured lines up once, prints their levels and
// releases them again.
func printState(w io.Writer, cfg *config.Config) error {
	if err := cfg.LoadConfig(); err != nil {
		return err
	}
	setupLogging(cfg)

	chip, err := openChip(cfg)
	if err != nil {
		return err
	}
	defer chip.Close()

	d, err := keys.New(cfg.Descriptors, keys.Options{
		Name: cfg.Name,
		Chip: chip,
		Sink: input.Multi{},
	})
	if err != nil {
		return err
	}
	defer d.Close()
	return writeLines(w, d.Lines())
}

func writeLines(w io.Writer, lines []keys.LineStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tTYPE\tCODE\tGPIO\tSENSING\tLEVEL\tDISABLED\tWAKE")
	for _, l := range lines {
		level := "inactive"
		if l.Level {
			level = "active"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%t\t%t\n",
			l.Label, l.Type, l.Code, l.Offset, l.Sensing, level, l.Disabled, l.Wake)
	}
	return tw.Flush()
}
