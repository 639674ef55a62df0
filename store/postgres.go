package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

const schema = `CREATE TABLE IF NOT EXISTS beacon_prefs (
	device_id  TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (device_id, key)
)`

// querier is the part of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConfig selects the database. When Instance is set the connection goes through
// the Cloud SQL connector and DSN only carries user, password and database.
type PostgresConfig struct {
	DSN       string
	Instance  string // Cloud SQL instance connection name, project:region:instance
	PrivateIP bool
	DeviceID  string // row namespace, one advertisement per device
}

// Postgres stores one advertisement per device id in beacon_prefs.
type Postgres struct {
	db       querier
	deviceID string
	closers  []func()
}

// OpenPostgres connects, pings and creates the table if needed.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}

	var closers []func()
	if cfg.Instance != "" {
		var opts []cloudsqlconn.Option
		if cfg.PrivateIP {
			opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
		}
		d, err := cloudsqlconn.NewDialer(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("cloudsql dialer: %w", err)
		}
		instance := cfg.Instance
		poolCfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return d.Dial(ctx, instance)
		}
		closers = append(closers, func() { d.Close() })
	}
	poolCfg.MinConns = 0
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	closers = append([]func(){pool.Close}, closers...)

	if err := pool.Ping(ctx); err != nil {
		for _, c := range closers {
			c()
		}
		return nil, fmt.Errorf("db ping: %w", err)
	}

	p := NewPostgres(pool, cfg.DeviceID)
	p.closers = closers
	if err := p.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	logger.Info("Store", "connected to postgres (cloudsql=%v)", cfg.Instance != "")
	return p, nil
}

// NewPostgres wraps an existing pool or connection.
func NewPostgres(db querier, deviceID string) *Postgres {
	return &Postgres{db: db, deviceID: deviceID}
}

// EnsureSchema creates beacon_prefs if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create beacon_prefs: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, raw ibeacon.RawAdvertisement) error {
	ct, err := p.db.Exec(ctx,
		`INSERT INTO beacon_prefs (device_id, key, value, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (device_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		p.deviceID, Key, EncodeValue(raw))
	if err != nil {
		return fmt.Errorf("save advertisement: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save advertisement: no row written for device %q", p.deviceID)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context) (ibeacon.RawAdvertisement, bool, error) {
	var value string
	err := p.db.QueryRow(ctx,
		`SELECT value FROM beacon_prefs WHERE device_id = $1 AND key = $2`,
		p.deviceID, Key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return ibeacon.RawAdvertisement{}, false, nil
	}
	if err != nil {
		return ibeacon.RawAdvertisement{}, false, fmt.Errorf("load advertisement: %w", err)
	}
	return DecodeValue(value)
}

// Close releases the pool and dialer opened by OpenPostgres.
func (p *Postgres) Close() {
	for _, c := range p.closers {
		c()
	}
	p.closers = nil
}
