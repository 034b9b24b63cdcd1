package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	apicrypto "github.com/computor-platform/computor-api/internal/crypto"

	"github.com/computor-platform/computor-api/internal/config"
	"github.com/computor-platform/computor-api/internal/store/postgres"
)

var (
	name    = "computor-migrate"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

// run opens the postgres store, which applies every pending migration as
// part of its constructor, then exits. It never starts the HTTP server.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var encKey []byte
	if cfg.Auth.EncryptionKey != "" {
		encKey, err = apicrypto.DeriveKey(cfg.Auth.EncryptionKey)
		if err != nil {
			return fmt.Errorf("derive encryption key: %w", err)
		}
	}

	store, err := postgres.New(ctx, &cfg.Store.Postgres, encKey)
	if err != nil {
		return fmt.Errorf("migrate postgres store: %w", err)
	}
	defer store.Close()

	slog.Info("migrations applied")
	return nil
}
