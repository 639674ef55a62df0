package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/user/ibeacon-blue/beacon"
	"github.com/user/ibeacon-blue/config"
	"github.com/user/ibeacon-blue/store"
	"github.com/user/ibeacon-blue/wire"
	"github.com/user/ibeacon-blue/wire/advertising"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

func fieldFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "uuid", Usage: "proximity id, 28 hex digits"},
		cli.BoolFlag{Name: "random-uuid", Usage: "generate a random proximity id"},
		cli.StringFlag{Name: "voltage", Usage: "battery voltage, 4 hex digits"},
		cli.StringFlag{Name: "major", Usage: "major, 4 hex digits"},
		cli.StringFlag{Name: "minor", Usage: "minor, 4 hex digits"},
		cli.StringFlag{Name: "power", Usage: "signal power at 1 m, 2 hex digits"},
	}
}

// formFromContext overlays the field flags that were given onto base.
func formFromContext(c *cli.Context, base ibeacon.FormFields) (ibeacon.FormFields, bool) {
	ff := base
	edited := false
	set := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = strings.ToLower(strings.TrimSpace(c.String(name)))
			edited = true
		}
	}
	set("uuid", &ff.ProximityID)
	set("voltage", &ff.BatteryVoltage)
	set("major", &ff.Major)
	set("minor", &ff.Minor)
	set("power", &ff.SignalPower)
	if c.Bool("random-uuid") {
		ff.ProximityID = ibeacon.FieldToHex(ibeacon.NewProximityID())
		edited = true
	}
	return ff, edited
}

// recordFromForm validates ff the way the settings screen does.
func recordFromForm(ff ibeacon.FormFields) (ibeacon.Record, error) {
	if mask := ibeacon.ValidateLengths(ff); !mask.Complete() {
		return ibeacon.Record{}, &beacon.ValidationError{Mask: mask, Messages: beacon.FieldMessages(mask)}
	}
	return ff.Record()
}

func printRecord(w io.Writer, r ibeacon.Record) {
	fmt.Fprintf(w, "UUID:          %s\n", ibeacon.FieldToHex(r.ProximityID))
	fmt.Fprintf(w, "Voltage:       %s\n", ibeacon.FieldToHex(r.BatteryVoltage))
	fmt.Fprintf(w, "Major:         %s (%d)\n", ibeacon.FieldToHex(r.Major), r.MajorValue())
	fmt.Fprintf(w, "Minor:         %s (%d)\n", ibeacon.FieldToHex(r.Minor), r.MinorValue())
	fmt.Fprintf(w, "Signal power:  %s (%d dBm)\n", ibeacon.FieldToHex(r.SignalPower), r.TxPower())
	if raw, err := ibeacon.Encode(r); err == nil {
		fmt.Fprintf(w, "Raw:           %s\n", raw)
	}
}

// printADStructures lists each AD structure of an advertising data block.
func printADStructures(w io.Writer, data []byte) {
	structures, err := advertising.DecodeADStructures(data)
	if err != nil {
		return
	}
	for _, st := range structures {
		fmt.Fprintf(w, "AD 0x%02x %-27s % x\n", st.Type, advertising.ADTypeName(st.Type), st.Data)
	}
	if flags, ok := advertising.GetFlags(structures); ok {
		fmt.Fprintf(w, "Flags:         0x%02x\n", flags)
	}
}

func validationHelp(w io.Writer, err error) error {
	var verr *beacon.ValidationError
	if errors.As(err, &verr) {
		for _, m := range verr.Messages {
			fmt.Fprintf(w, "  - %s\n", m.Message)
		}
	}
	return err
}

// loadRecord returns the saved record, or the default one when nothing was saved.
func loadRecord(ctx context.Context, st beacon.Store) (ibeacon.Record, error) {
	raw, ok, err := st.Load(ctx)
	if err != nil {
		return ibeacon.Record{}, err
	}
	if !ok {
		return ibeacon.DefaultRecord(), nil
	}
	return raw.Record(), nil
}

func show(c *cli.Context) error {
	ctx := context.Background()
	st, closeStore, err := openStore(ctx, configFrom(c))
	if err != nil {
		return err
	}
	defer closeStore()

	r, err := loadRecord(ctx, st)
	if err != nil {
		return err
	}
	printRecord(c.App.Writer, r)
	return nil
}

func setFields(c *cli.Context) error {
	ctx := context.Background()
	st, closeStore, err := openStore(ctx, configFrom(c))
	if err != nil {
		return err
	}
	defer closeStore()

	current, err := loadRecord(ctx, st)
	if err != nil {
		return err
	}
	ff, edited := formFromContext(c, ibeacon.FormFieldsFromRecord(current))
	if !edited {
		return errors.New("nothing to set (use --uuid, --voltage, --major, --minor or --power)")
	}

	r, err := recordFromForm(ff)
	if err != nil {
		return validationHelp(c.App.Writer, err)
	}
	raw, err := ibeacon.Encode(r)
	if err != nil {
		return err
	}
	if err := st.Save(ctx, raw); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "✅ Saved\n")
	printRecord(c.App.Writer, r)
	return nil
}

func encode(c *cli.Context) error {
	ff, _ := formFromContext(c, ibeacon.FormFieldsFromRecord(ibeacon.DefaultRecord()))
	r, err := recordFromForm(ff)
	if err != nil {
		return validationHelp(c.App.Writer, err)
	}
	raw, err := ibeacon.Encode(r)
	if err != nil {
		return err
	}

	switch {
	case c.Bool("ad"):
		block, err := advertising.EncodeIBeacon(raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, hex.EncodeToString(block))
	case c.Bool("base64"):
		fmt.Fprintln(c.App.Writer, store.EncodeValue(raw))
	default:
		fmt.Fprintln(c.App.Writer, raw)
	}
	return nil
}

func parseHexArg(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}

func decode(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("decode needs exactly one hex argument")
	}
	b, err := parseHexArg(c.Args().First())
	if err != nil {
		return err
	}

	if c.Bool("ad") {
		printADStructures(c.App.Writer, b)
		raw, err := advertising.ParseIBeacon(b)
		if err != nil {
			return err
		}
		b = raw.Bytes()
	}

	var r ibeacon.Record
	if configFrom(c).Strict {
		r, err = ibeacon.DecodeStrict(b)
	} else {
		r, err = ibeacon.Decode(b)
	}
	if err != nil {
		return err
	}
	printRecord(c.App.Writer, r)
	return nil
}

func showDefault(c *cli.Context) error {
	r := ibeacon.DefaultRecord()
	printRecord(c.App.Writer, r)
	if !c.Bool("save") {
		return nil
	}

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, configFrom(c))
	if err != nil {
		return err
	}
	defer closeStore()
	if err := st.Save(ctx, ibeacon.DefaultAdvertisement()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "✅ Saved\n")
	return nil
}

func broadcast(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	cfg := configFrom(c)
	svc, cleanup, err := newService(ctx, cfg, c.App.Writer)
	if err != nil {
		return err
	}
	defer cleanup()
	defer svc.Close()

	if _, err := svc.Load(ctx); err != nil {
		return err
	}

	start := func() (*beacon.Completion, error) {
		if ff, edited := formFromContext(c, svc.Form()); edited {
			return svc.Apply(ctx, ff)
		}
		return svc.Start()
	}

	done, err := start()
	if err != nil {
		return validationHelp(c.App.Writer, err)
	}
	err = waitStarted(ctx, done, c.Duration("start-timeout"))
	if errors.Is(err, beacon.ErrRecoverableConflict) {
		// Retry once; the conflicting advertisement has been stopped.
		if done, err = svc.Start(); err != nil {
			return err
		}
		err = waitStarted(ctx, done, c.Duration("start-timeout"))
	}
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func waitStarted(ctx context.Context, done *beacon.Completion, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return done.Wait(wctx)
}

func scan(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.Driver != config.DriverSim {
		return fmt.Errorf("scan only reads the simulated air (driver %q)", cfg.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	scanAir(ctx, wire.NewWire(cfg.DeviceID), c.App.Writer, c.Duration("interval"), c.Float64("distance"))
	return nil
}

// scanAir prints each new iBeacon heard on the simulated air until ctx is done.
func scanAir(ctx context.Context, w *wire.Wire, out io.Writer, interval time.Duration, distance float64) {
	sim := wire.NewSimulator(nil)
	var mu sync.Mutex
	seen := map[string]string{}

	stopChan := w.StartDiscovery(interval, func(deviceUUID string, data *wire.AdvertisingData) {
		if !sim.ShouldPacketSucceed() {
			return
		}
		raw, err := advertising.ParseIBeacon(data.Payload)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[deviceUUID] == raw.String() {
			return
		}
		seen[deviceUUID] = raw.String()

		r := raw.Record()
		rssi := sim.GenerateRSSI(r.TxPower(), distance)
		fmt.Fprintf(out, "🔍 %s  major=%d minor=%d power=%ddBm rssi=%d ~%.1fm  %s\n",
			deviceUUID, r.MajorValue(), r.MinorValue(), r.TxPower(), rssi, sim.EstimateDistance(r.TxPower(), rssi), raw)
	})

	<-ctx.Done()
	close(stopChan)

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "Found %d beacon(s)\n", len(seen))
}
