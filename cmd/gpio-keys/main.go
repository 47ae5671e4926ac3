// Command gpio-keys reports debounced button and switch changes on GPIO lines
// as input events, over MQTT, and on an HTTP status page.
package main

import (
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sweeney/gpio-keys/internal/config"
)

const defaultConfigFile = "/etc/gpio-keys.yaml"

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.0.0-dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	cfg := config.NewConfig()
	var server string

	app := &cli.App{
		Name:    "gpio-keys",
		Usage:   "report GPIO buttons and switches as input events",
		Version: version,
		Description: "Debounces edges on GPIO lines and reports press and release events to a" +
			"\n virtual input device and an MQTT broker. Lines can be disabled and armed" +
			"\n as wake sources through the HTTP control server.",
		UsageText: "gpio-keys [--config <file>] [--log <level>] <command>" +
			"\n\nEXAMPLE:" +
			"\n\tstart the daemon" +
			"\n\t\tgpio-keys --config /etc/gpio-keys.yaml run" +
			"\n\tdisable the volume keys of a running daemon" +
			"\n\t\tgpio-keys disable key 114-115",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.LogLevel, Usage: "`LEVEL` overrides the configured log level (panic|fatal|error|warning|info|debug|trace)"},
			&cli.StringFlag{Name: "broker", Destination: &cfg.Flag.Broker, Usage: "MQTT broker `URL`, overrides the configuration"},
			&cli.StringFlag{Name: "http", Destination: &cfg.Flag.HTTPAddr, Usage: "HTTP listen `ADDR`, overrides the configuration"},
			&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Destination: &server, Value: "http://127.0.0.1:80", Usage: "control server `URL` used by the client commands"},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the daemon",
				Action: func(*cli.Context) error {
					return runDaemon(cfg)
				},
			},
			{
				Name:  "state",
				Usage: "print the current level of every line and exit",
				Action: func(c *cli.Context) error {
					return printState(c.App.Writer, cfg)
				},
			},
			{
				Name:      "list",
				Usage:     "list the codes, disabled codes and wake codes of a running daemon",
				ArgsUsage: "[key|switch]",
				Action: func(c *cli.Context) error {
					return listCodes(c.App.Writer, newClient(server), c.Args().First())
				},
			},
			{
				Name:      "disable",
				Usage:     "replace the disabled codes of a type; an empty list enables every line",
				ArgsUsage: "<key|switch> [list]",
				Action: func(c *cli.Context) error {
					return disableCodes(newClient(server), c.Args().Get(0), c.Args().Get(1))
				},
			},
			{
				Name:      "wakeup",
				Usage:     "enable or disable wake on a code",
				ArgsUsage: "<key|switch> <code> <enable|disable>",
				Action: func(c *cli.Context) error {
					return setWakeup(newClient(server), c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
				},
			},
			{
				Name:      "power",
				Usage:     "request a power transition",
				ArgsUsage: "<suspend|resume|syscore-resume>",
				Action: func(c *cli.Context) error {
					return power(c.App.Writer, newClient(server), c.Args().First())
				},
			},
		},
		DefaultCommand: "run",
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))
	return app
}
