package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	DefaultDatastoreDir   = "auth_info"
	defaultSQLiteFile     = "whatsmeow.db"
	datastoreDriverSQLite = "sqlite3"
	datastoreDriverPgx    = "pgx"
)

var ErrDatastoreClosed = errors.New("whatsapp datastore is closed")

// Datastore persists device credentials in whatsmeow's SQL store. Every write is a
// single upsert inside the database, so a crash mid-save leaves the previous row intact.
type Datastore struct {
	container *sqlstore.Container
	driver    string
}

type DatastoreConfig struct {
	Driver string
	URI    string
	Dir    string
}

func OpenDatastore(ctx context.Context, cfg DatastoreConfig, logger waLog.Logger) (*Datastore, error) {
	driver := normalizeDatastoreDriver(cfg.Driver)

	uri, err := datastoreURI(driver, cfg)
	if err != nil {
		return nil, err
	}

	container, err := sqlstore.New(ctx, driver, uri, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s datastore: %w", driver, err)
	}

	if err := container.Upgrade(ctx); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("upgrade datastore schema: %w", err)
	}

	return &Datastore{container: container, driver: driver}, nil
}

func (d *Datastore) Driver() string {
	return d.driver
}

// Load returns the stored device, or a fresh unregistered one on first run.
func (d *Datastore) Load(ctx context.Context) (*store.Device, error) {
	if d.container == nil {
		return nil, ErrDatastoreClosed
	}
	device, err := d.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return device, nil
}

func (d *Datastore) Save(ctx context.Context, device *store.Device) error {
	if d.container == nil {
		return ErrDatastoreClosed
	}
	if device == nil || device.ID == nil {
		return errors.New("device has no JID yet")
	}
	if err := d.container.PutDevice(ctx, device); err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

func (d *Datastore) Delete(ctx context.Context, device *store.Device) error {
	if d.container == nil {
		return ErrDatastoreClosed
	}
	if device == nil || device.ID == nil {
		return nil
	}
	if err := d.container.DeleteDevice(ctx, device); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}

func (d *Datastore) Close() error {
	if d.container == nil {
		return nil
	}
	err := d.container.Close()
	d.container = nil
	return err
}

// Credentials binds a datastore to the device currently used by the client.
type Credentials struct {
	store  *Datastore
	device *store.Device
}

func NewCredentials(datastore *Datastore, device *store.Device) *Credentials {
	return &Credentials{store: datastore, device: device}
}

func (c *Credentials) Device() *store.Device {
	return c.device
}

func (c *Credentials) Save(ctx context.Context) error {
	return c.store.Save(ctx, c.device)
}

func (c *Credentials) Delete(ctx context.Context) error {
	return c.store.Delete(ctx, c.device)
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgresql", "postgres", "pgx":
		return datastoreDriverPgx
	case "", "sqlite", "sqlite3":
		return datastoreDriverSQLite
	default:
		return strings.ToLower(driver)
	}
}

func datastoreURI(driver string, cfg DatastoreConfig) (string, error) {
	switch driver {
	case datastoreDriverPgx:
		if strings.TrimSpace(cfg.URI) == "" {
			return "", errors.New("WHATSAPP_DATASTORE_URI is required for postgres")
		}
		return normalizePostgresDSN(cfg.URI), nil
	case datastoreDriverSQLite:
		return sqliteDSN(cfg)
	default:
		return "", fmt.Errorf("unsupported datastore driver %s", driver)
	}
}

func sqliteDSN(cfg DatastoreConfig) (string, error) {
	dsn := strings.TrimSpace(cfg.URI)
	if dsn == "" {
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDatastoreDir
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create datastore dir: %w", err)
		}
		dsn = "file:" + filepath.Join(dir, defaultSQLiteFile)
	}
	return appendDSNParam(dsn, "_foreign_keys", "on"), nil
}

func normalizePostgresDSN(dsn string) string {
	dsn = appendDSNParam(dsn, "prefer_simple_protocol", "true")
	dsn = appendDSNParam(dsn, "statement_cache_capacity", "0")
	dsn = appendDSNParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}

func appendDSNParam(current string, key string, value string) string {
	if strings.Contains(current, key+"=") {
		return current
	}
	separator := "?"
	if strings.Contains(current, "?") {
		if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
			separator = ""
		} else {
			separator = "&"
		}
	}
	return current + separator + key + "=" + value
}
