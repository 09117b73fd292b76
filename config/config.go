/*
Package config loads the application configuration.

PURPOSE:
  Turns the JSON configuration document (plus optional .env file and
  COMPRAS_* environment variables) into an explicit, typed Config. The
  database section is a tagged union: exactly one Backend variant is active.

DOCUMENT SHAPE:
  {
    "config": "sqlite",                      <- selects the active section
    "secret_key": "change-me",
    "sqlite":   {"driver": "SQLITE", "database": "database.db"},
    "mariadb":  {"driver": "MARIADB", "server": "db", "port": 3306,
                 "username": "u", "password": "p", "database": "compras"},
    "postgres": {"driver": "POSTGRES", ..., "sslmode": "disable"},
    "server":   {"addr": ":8080", "allowed_origins": ["http://localhost:8080"]},
    "session":  {"store": "memory", "ttl": "8h", "cookie_name": "compras_session"},
    "requisitions": {"atomic_upsert": true}
  }

PRECEDENCE (highest first):
  1. Environment variables (COMPRAS_SECRET_KEY, COMPRAS_SESSION_STORE, ...)
  2. .env file next to the config document
  3. The JSON document
  4. Defaults

SEE ALSO:
  - store/adapter.go: Consumes Backend
  - cmd/server/main.go: Calls Load
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// =============================================================================
// BACKEND - Tagged union of supported databases
// =============================================================================

// Driver is the discriminant stored in each backend section.
type Driver string

const (
	DriverSQLite   Driver = "SQLITE"
	DriverMariaDB  Driver = "MARIADB"
	DriverPostgres Driver = "POSTGRES"
)

// Backend is implemented by SQLite, MariaDB and Postgres only.
type Backend interface {
	Driver() Driver
	backend()
}

// SQLite is the embedded, file-based backend.
type SQLite struct {
	Path string // ":memory:" for an in-memory database
}

// MariaDB is the networked relational backend.
type MariaDB struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Postgres is an additional networked backend.
type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (SQLite) Driver() Driver   { return DriverSQLite }
func (MariaDB) Driver() Driver  { return DriverMariaDB }
func (Postgres) Driver() Driver { return DriverPostgres }

func (SQLite) backend()   {}
func (MariaDB) backend()  {}
func (Postgres) backend() {}

// =============================================================================
// CONFIG
// =============================================================================

// Config is the fully resolved application configuration.
type Config struct {
	SecretKey    string
	Backend      Backend
	Server       Server
	Session      Session
	AtomicUpsert bool
}

// Server holds HTTP listener settings.
type Server struct {
	Addr           string
	AllowedOrigins []string
}

// SessionStoreKind selects where session records live.
type SessionStoreKind string

const (
	SessionMemory SessionStoreKind = "memory"
	SessionRedis  SessionStoreKind = "redis"
)

// Session holds session store and cookie settings.
type Session struct {
	Store        SessionStoreKind
	RedisURL     string
	TTL          time.Duration
	CookieName   string
	SecureCookie bool
}

var (
	ErrNoActiveSection = errors.New("config: no active backend section")
	ErrUnknownDriver   = errors.New("config: unknown database driver")
	ErrMissingSecret   = errors.New("config: secret_key is required")
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "COMPRAS"

// Load reads the configuration document at path.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)

	// Optional .env next to the document; never overrides the real environment.
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return fromViper(v, dir)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8080"})
	v.SetDefault("session.store", string(SessionMemory))
	v.SetDefault("session.ttl", "8h")
	v.SetDefault("session.cookie_name", "compras_session")
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("requisitions.atomic_upsert", true)
}

func fromViper(v *viper.Viper, instanceDir string) (*Config, error) {
	section := strings.ToLower(v.GetString("config"))
	if section == "" {
		return nil, ErrNoActiveSection
	}

	backend, err := parseBackend(v, section, instanceDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SecretKey: v.GetString("secret_key"),
		Backend:   backend,
		Server: Server{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Session: Session{
			Store:        SessionStoreKind(strings.ToLower(v.GetString("session.store"))),
			RedisURL:     v.GetString("session.redis_url"),
			TTL:          v.GetDuration("session.ttl"),
			CookieName:   v.GetString("session.cookie_name"),
			SecureCookie: v.GetBool("session.secure_cookie"),
		},
		AtomicUpsert: v.GetBool("requisitions.atomic_upsert"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseBackend(v *viper.Viper, section, instanceDir string) (Backend, error) {
	key := func(k string) string { return section + "." + k }

	if !v.IsSet(key("driver")) {
		return nil, fmt.Errorf("%w: section %q has no driver", ErrUnknownDriver, section)
	}

	switch Driver(strings.ToUpper(v.GetString(key("driver")))) {
	case DriverSQLite:
		path := v.GetString(key("database"))
		if path == "" {
			return nil, fmt.Errorf("config: %s.database is required", section)
		}
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(instanceDir, path)
		}
		return SQLite{Path: path}, nil

	case DriverMariaDB:
		return MariaDB{
			Host:     v.GetString(key("server")),
			Port:     portOr(v.GetInt(key("port")), 3306),
			User:     v.GetString(key("username")),
			Password: v.GetString(key("password")),
			Database: v.GetString(key("database")),
		}, nil

	case DriverPostgres:
		sslMode := v.GetString(key("sslmode"))
		if sslMode == "" {
			sslMode = "disable"
		}
		return Postgres{
			Host:     v.GetString(key("server")),
			Port:     portOr(v.GetInt(key("port")), 5432),
			User:     v.GetString(key("username")),
			Password: v.GetString(key("password")),
			Database: v.GetString(key("database")),
			SSLMode:  sslMode,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, v.GetString(key("driver")))
	}
}

func portOr(p, fallback int) int {
	if p == 0 {
		return fallback
	}
	return p
}

// Validate checks required fields for the selected variant.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return ErrMissingSecret
	}

	switch b := c.Backend.(type) {
	case SQLite:
		if b.Path == "" {
			return errors.New("config: sqlite path is required")
		}
	case MariaDB:
		if err := requireNetworked(b.Host, b.User, b.Database); err != nil {
			return err
		}
	case Postgres:
		if err := requireNetworked(b.Host, b.User, b.Database); err != nil {
			return err
		}
	case nil:
		return ErrNoActiveSection
	}

	switch c.Session.Store {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisURL == "" {
			return errors.New("config: session.redis_url is required for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown session store %q", c.Session.Store)
	}

	if c.Session.TTL <= 0 {
		return errors.New("config: session.ttl must be positive")
	}
	return nil
}

func requireNetworked(host, user, database string) error {
	switch {
	case host == "":
		return errors.New("config: server is required")
	case user == "":
		return errors.New("config: username is required")
	case database == "":
		return errors.New("config: database is required")
	}
	return nil
}

// LogFormat reports the requested log output ("console" unless COMPRAS_LOG_FORMAT=json).
func LogFormat() string {
	if strings.EqualFold(os.Getenv(EnvPrefix+"_LOG_FORMAT"), "json") {
		return "json"
	}
	return "console"
}
