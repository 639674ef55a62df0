package main

import (
	"context"
	"fmt"
	"io"

	"github.com/user/ibeacon-blue/beacon"
	"github.com/user/ibeacon-blue/config"
	"github.com/user/ibeacon-blue/events"
	"github.com/user/ibeacon-blue/kotlin"
	"github.com/user/ibeacon-blue/radio"
	"github.com/user/ibeacon-blue/radio/bluez"
	"github.com/user/ibeacon-blue/radio/tinygo"
	"github.com/user/ibeacon-blue/store"
	"github.com/user/ibeacon-blue/wire"
)

// openStore returns the configured persistence backend and its cleanup.
func openStore(ctx context.Context, cfg config.Config) (beacon.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := store.OpenPostgres(ctx, store.PostgresConfig{
			DSN:       cfg.PostgresDSN,
			Instance:  cfg.CloudSQLInstance,
			PrivateIP: cfg.CloudSQLPrivateIP,
			DeviceID:  cfg.DeviceID,
		})
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return store.NewFile(""), func() {}, nil
	}
}

// openDriver returns the configured radio.
func openDriver(cfg config.Config) (radio.Driver, error) {
	switch cfg.Driver {
	case config.DriverBlueZ:
		return bluez.Open(cfg.AdapterID)
	case config.DriverTinyGo:
		return tinygo.Open()
	default:
		manager := kotlin.NewBluetoothManager(cfg.DeviceID, wire.NewWire(cfg.DeviceID))
		return radio.NewAndroid(manager.Adapter, cfg.DeviceID), nil
	}
}

// printListener reports session events to the terminal.
func printListener(out io.Writer) beacon.Listener {
	return beacon.ListenerFunc(func(e beacon.Event) {
		switch e.Kind {
		case beacon.EventStarted:
			fmt.Fprintf(out, "📡 Broadcasting %s\n", e.Raw)
		case beacon.EventStopped:
			fmt.Fprintf(out, "📡 Stopped\n")
		case beacon.EventConflict:
			fmt.Fprintf(out, "⚠️  Radio was already advertising: %v\n", e.Err)
		case beacon.EventFailed:
			fmt.Fprintf(out, "❌ Broadcast failed: %v\n", e.Err)
		}
	})
}

// newService assembles driver, listeners and store into a beacon service.
func newService(ctx context.Context, cfg config.Config, out io.Writer) (*beacon.Service, func(), error) {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	driver, err := openDriver(cfg)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	opts := []beacon.Option{
		beacon.WithID(cfg.DeviceID),
		beacon.WithListener(printListener(out)),
	}
	cleanup := closeStore
	if cfg.PublishEvents() {
		pub, err := events.NewPublisher(ctx, events.Config{
			ProjectID: cfg.PubSubProject,
			Topic:     cfg.PubSubTopic,
			Ordering:  cfg.PubSubOrdering,
		})
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		opts = append(opts, beacon.WithListener(pub))
		cleanup = func() {
			pub.Close()
			closeStore()
		}
	}

	return beacon.NewService(beacon.NewSession(driver, opts...), st), cleanup, nil
}
