// Package config holds runtime settings, filled from CLI flags with environment fallbacks.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/util"
)

// Radio drivers.
const (
	DriverSim    = "sim"
	DriverBlueZ  = "bluez"
	DriverTinyGo = "tinygo"
)

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	DataDir  string
	DeviceID string
	LogLevel string

	Driver    string
	AdapterID string // bluez only, e.g. hci0

	Store             string
	PostgresDSN       string
	CloudSQLInstance  string
	CloudSQLPrivateIP bool

	PubSubProject  string
	PubSubTopic    string
	PubSubOrdering bool

	// Strict makes decode reject advertisements whose header is not 02 15.
	Strict bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DataDir:   util.GetDataDir(),
		LogLevel:  "INFO",
		Driver:    DriverSim,
		AdapterID: "hci0",
		Store:     StoreFile,
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSim, DriverBlueZ, DriverTinyGo:
	default:
		return fmt.Errorf("config: unknown driver %q (want %s, %s or %s)", c.Driver, DriverSim, DriverBlueZ, DriverTinyGo)
	}
	if c.Driver == DriverBlueZ && c.AdapterID == "" {
		return fmt.Errorf("config: bluez driver needs an adapter id")
	}

	switch c.Store {
	case StoreFile:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: postgres store needs a DSN")
		}
	default:
		return fmt.Errorf("config: unknown store %q (want %s or %s)", c.Store, StoreFile, StorePostgres)
	}
	if c.CloudSQLInstance != "" && c.Store != StorePostgres {
		return fmt.Errorf("config: cloudsql instance set without the postgres store")
	}

	if (c.PubSubProject == "") != (c.PubSubTopic == "") {
		return fmt.Errorf("config: pubsub needs both project and topic")
	}

	switch strings.ToUpper(c.LogLevel) {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// PublishEvents reports whether session events go to Pub/Sub.
func (c Config) PublishEvents() bool {
	return c.PubSubProject != "" && c.PubSubTopic != ""
}

// Flags are the global CLI flags backing Config.
func Flags() []cli.Flag {
	d := Default()
	return []cli.Flag{
		cli.StringFlag{Name: "data-dir", Value: d.DataDir, EnvVar: util.DataDirEnv, Usage: "directory for preferences and the simulated air"},
		cli.StringFlag{Name: "device-id", EnvVar: "IBEACON_DEVICE_ID", Usage: "device id (random when empty)"},
		cli.StringFlag{Name: "log-level", Value: d.LogLevel, EnvVar: "IBEACON_LOG_LEVEL", Usage: "TRACE, DEBUG, INFO, WARN or ERROR"},
		cli.StringFlag{Name: "driver", Value: d.Driver, EnvVar: "IBEACON_DRIVER", Usage: "radio driver (sim / bluez / tinygo)"},
		cli.StringFlag{Name: "adapter", Value: d.AdapterID, EnvVar: "IBEACON_ADAPTER", Usage: "BlueZ adapter"},
		cli.StringFlag{Name: "store", Value: d.Store, EnvVar: "IBEACON_STORE", Usage: "persistence backend (file / postgres)"},
		cli.StringFlag{Name: "pg-dsn", EnvVar: "IBEACON_PG_DSN", Usage: "postgres connection string"},
		cli.StringFlag{Name: "cloudsql-instance", EnvVar: "INSTANCE_CONNECTION_NAME", Usage: "Cloud SQL instance (project:region:instance)"},
		cli.BoolFlag{Name: "cloudsql-private-ip", EnvVar: "USE_PRIVATE_IP", Usage: "dial Cloud SQL over private IP"},
		cli.StringFlag{Name: "pubsub-project", EnvVar: "GCP_PROJECT_ID", Usage: "project for session events"},
		cli.StringFlag{Name: "pubsub-topic", EnvVar: "IBEACON_EVENTS_TOPIC", Usage: "topic for session events"},
		cli.BoolFlag{Name: "pubsub-ordering", EnvVar: "IBEACON_EVENTS_ORDERING", Usage: "order events per session"},
		cli.BoolFlag{Name: "strict", EnvVar: "IBEACON_STRICT", Usage: "reject advertisements without the 02 15 header"},
	}
}

// FromContext reads the global flags. An empty device id is replaced with a random one.
func FromContext(c *cli.Context) Config {
	cfg := Config{
		DataDir:           c.GlobalString("data-dir"),
		DeviceID:          c.GlobalString("device-id"),
		LogLevel:          c.GlobalString("log-level"),
		Driver:            strings.ToLower(c.GlobalString("driver")),
		AdapterID:         c.GlobalString("adapter"),
		Store:             strings.ToLower(c.GlobalString("store")),
		PostgresDSN:       c.GlobalString("pg-dsn"),
		CloudSQLInstance:  c.GlobalString("cloudsql-instance"),
		CloudSQLPrivateIP: c.GlobalBool("cloudsql-private-ip"),
		PubSubProject:     c.GlobalString("pubsub-project"),
		PubSubTopic:       c.GlobalString("pubsub-topic"),
		PubSubOrdering:    c.GlobalBool("pubsub-ordering"),
		Strict:            c.GlobalBool("strict"),
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.New().String()
	}
	return cfg
}

// Apply pushes process-wide settings: the data directory and the log level.
func (c Config) Apply() error {
	if c.DataDir != "" {
		if err := os.Setenv(util.DataDirEnv, c.DataDir); err != nil {
			return fmt.Errorf("config: set data dir: %w", err)
		}
	}
	logger.SetLevel(logger.ParseLevel(c.LogLevel))
	return nil
}
