package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/alan"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

var Service = ""

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	Server    Server      `cfg:"server"`
	Store     Store       `cfg:"store"`
	Redis     Redis       `cfg:"redis"`
	Blob      Blob        `cfg:"blob"`
	Temporal  Temporal    `cfg:"temporal"`
	Auth      Auth        `cfg:"auth"`
	WebSocket WebSocket   `cfg:"websocket"`
	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`

	// ForwardAuth, if set, delegates credential verification to an external
	// authentication proxy instead of the local password/session checks.
	ForwardAuth *mforwardauth.ForwardAuth `cfg:"forward_auth"`

	// AdminUser holds spec.md §6's API_ADMIN_USER. Nothing in this module
	// reads it; no bootstrap admin account is created from it.
	AdminUser string `cfg:"admin_user"`

	// LocalStorageDir holds API_LOCAL_STORAGE_DIR from spec.md §6. Nothing in
	// this module reads it: blob storage always goes through MinIO.
	LocalStorageDir string `cfg:"local_storage_dir"`

	// Alan, if set, enables UDP peer discovery so multiple instances can elect
	// a single leader for the deployment-release scheduler (§4.7) and share
	// WebSocket presence bookkeeping (§4.9).
	Alan *alan.Config `cfg:"alan"`
}

type Store struct {
	Postgres StorePostgres `cfg:"postgres"`
}

type StorePostgres struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`

	Migrate Migrate `cfg:"migrate"`
}

type Migrate struct {
	Table  string            `cfg:"table" default:"migrations"`
	Values map[string]string `cfg:"values"`
}

// Redis backs the session/refresh-token store, the legacy keys:* view cache,
// the WebSocket presence keys, and the pub/sub bridge (spec.md §4.3, §4.5, §4.9).
type Redis struct {
	Addr     string `cfg:"addr" default:"localhost:6379"`
	Password string `cfg:"password" log:"-"`
	DB       int    `cfg:"db"`
}

// Blob configures the MinIO client for submission artifacts, result
// artifacts, and example payloads (spec.md §6 "Persisted state").
type Blob struct {
	Endpoint  string `cfg:"endpoint"`
	AccessKey string `cfg:"access_key" log:"-"`
	SecretKey string `cfg:"secret_key" log:"-"`
	Secure    bool   `cfg:"secure" default:"true"`
}

// Temporal configures the C10 task executor adapter (spec.md §4.10).
type Temporal struct {
	Host      string `cfg:"host" default:"localhost"`
	Port      string `cfg:"port" default:"7233"`
	Namespace string `cfg:"namespace" default:"default"`
	TaskQueue string `cfg:"task_queue" default:"computor-tests"`
}

// Auth configures the AUTH_CACHE_TTL and session lifetimes from spec.md §4.1/§4.3.
type Auth struct {
	AccessTTL      time.Duration `cfg:"access_ttl" default:"15m"`
	RefreshTTL     time.Duration `cfg:"refresh_ttl" default:"720h"`
	PrincipalTTL   time.Duration `cfg:"principal_ttl" default:"10s"`
	EncryptionKey  string        `cfg:"encryption_key" log:"-"`
	MaxUploadBytes int64         `cfg:"max_upload_bytes" default:"104857600"`
}

// WebSocket configures the WS_* environment variables from spec.md §6.
type WebSocket struct {
	MaxTotalConnections   int           `cfg:"max_total_connections" default:"10000"`
	MaxConnectionsPerUser int           `cfg:"max_connections_per_user" default:"8"`
	PresenceTTL           time.Duration `cfg:"presence_ttl" default:"60s"`
	SendTimeout           time.Duration `cfg:"send_timeout" default:"5s"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("COMPUTOR_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
