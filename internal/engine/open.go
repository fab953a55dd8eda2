package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/celerix-dev/key-switcher/pkg/schema"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

// Driver names a store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverRedis    Driver = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver Driver
	// URL is the DSN (postgres), database file (sqlite) or redis:// URL.
	URL string
	// Key is the store credential. It is used as the password when URL carries none.
	Key string
	// DataDir holds the memory backend's snapshot. Empty disables persistence.
	DataDir string
}

// Open initializes the backend named by opts.Driver.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (Store, error) {
	log = log.With().Str("store", string(opts.Driver)).Logger()

	switch opts.Driver {
	case DriverMemory, "":
		var p *Persistence
		var initial map[string]schema.StudentRecord
		if opts.DataDir != "" {
			var err error
			p, err = NewPersistence(opts.DataDir)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize persistence: %w", err)
			}
			initial, err = p.LoadAll()
			if err != nil {
				return nil, fmt.Errorf("failed to load records: %w", err)
			}
		}
		log.Info().Int("records", len(initial)).Str("data_dir", opts.DataDir).Msg("memory store ready")
		return NewMemStore(initial, p, log), nil

	case DriverSQLite:
		path := opts.URL
		if path == "" {
			path = "keyswitch.db"
		}
		return NewSQLStore(sqlite.Open(path), log)

	case DriverPostgres:
		dsn, err := withPassword(opts.URL, opts.Key)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(postgres.Open(dsn), log)

	case DriverRedis:
		ro, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if ro.Password == "" {
			ro.Password = opts.Key
		}
		client := redis.NewClient(ro)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisStore(client), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// withPassword injects key as the password of a postgres:// URL that has none.
// Key/value DSNs are returned unchanged.
func withPassword(dsn, key string) (string, error) {
	if key == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn, nil
	}
	if u.User == nil {
		return "", fmt.Errorf("store url has no user to attach the store key to")
	}
	if _, set := u.User.Password(); set {
		return dsn, nil
	}
	u.User = url.UserPassword(u.User.Username(), key)
	return u.String(), nil
}
