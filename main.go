package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/user/ibeacon-blue/config"
	"github.com/user/ibeacon-blue/logger"
)

const configKey = "config"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()

	app.Name = "ibeacon-blue"
	app.Usage = "Edit, persist and broadcast an iBeacon advertisement"
	app.Version = "0.1.0"
	app.Writer = out
	app.Action = cli.ShowAppHelp
	app.Flags = config.Flags()
	app.Metadata = map[string]interface{}{}

	app.Commands = []cli.Command{
		{
			Name:   "show",
			Usage:  "Print the saved advertisement (or the default when none is saved)",
			Action: show,
		},
		{
			Name:   "set",
			Usage:  "Edit fields of the saved advertisement",
			Action: setFields,
			Flags:  fieldFlags(),
		},
		{
			Name:   "encode",
			Usage:  "Encode fields over the default record and print the raw advertisement",
			Action: encode,
			Flags: append(fieldFlags(),
				cli.BoolFlag{Name: "ad", Usage: "print the complete 31-byte advertising data block"},
				cli.BoolFlag{Name: "base64", Usage: "print the stored (base64) form"},
			),
		},
		{
			Name:      "decode",
			Usage:     "Decode a raw advertisement given in hex",
			ArgsUsage: "<hex>",
			Action:    decode,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "ad", Usage: "input is a complete advertising data block"},
			},
		},
		{
			Name:   "default",
			Usage:  "Print the default record",
			Action: showDefault,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "save", Usage: "also save it as the current advertisement"},
			},
		},
		{
			Name:    "broadcast",
			Aliases: []string{"b"},
			Usage:   "Broadcast the saved advertisement, applying any field edits first",
			Action:  broadcast,
			Flags: append(fieldFlags(),
				cli.DurationFlag{Name: "duration, d", Usage: "stop after this long (0 = until interrupted)"},
				cli.DurationFlag{Name: "start-timeout", Value: 5 * time.Second, Usage: "how long to wait for the radio to confirm"},
			),
		},
		{
			Name:    "scan",
			Aliases: []string{"s"},
			Usage:   "List iBeacons broadcast by other simulated devices",
			Action:  scan,
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration, d", Value: 5 * time.Second, Usage: "how long to scan, 0 scans until interrupted"},
				cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "poll interval"},
				cli.Float64Flag{Name: "distance", Value: 1, Usage: "simulated distance to each beacon in meters"},
			},
		},
	}

	app.Before = setup
	return app
}

func setup(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Apply(); err != nil {
		return err
	}
	c.App.Metadata[configKey] = cfg
	logger.Debug("", "driver=%s store=%s data=%s", cfg.Driver, cfg.Store, cfg.DataDir)
	return nil
}

func configFrom(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[configKey].(config.Config); ok {
		return cfg
	}
	return config.Default()
}
