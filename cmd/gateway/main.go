// cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-redis/redis/v8"

	"turnera/gateway/internal/backend"
	"turnera/gateway/internal/config"
	"turnera/gateway/internal/gateway"
	"turnera/gateway/internal/slotcache"
)

var version = "dev"

// CLI is the gateway command line.
type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`
	Config  string           `help:"Path to YAML config file." short:"c" default:"gateway.yaml" type:"path"`
	Port    int              `help:"Listen port (overrides config and PORT)."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("gateway"),
		kong.Description("Booking API gateway in front of the scheduling backend."),
		kong.Vars{"version": version},
	)
	if err := run(cli); err != nil {
		log.Fatal(err)
	}
}

func run(cli CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.Port != 0 {
		cfg.Server.Port = cli.Port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, closeStore, err := newStore(cfg.Cache)
	if err != nil {
		return err
	}
	defer closeStore()

	slots := slotcache.New(cfg.Cache.TTL, slotcache.WithStore(store))
	client := backend.New(cfg.Backend.URL, backend.WithTimeout(cfg.Backend.Timeout))
	gw := gateway.New(client, slots,
		gateway.WithAdminSecret(cfg.Auth.JWTSecret),
		gateway.WithAllowedOrigins(cfg.CORS.AllowedOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API Gateway listening on http://localhost%s (cache %s, store %s)", srv.Addr, cfg.Cache.TTL, cfg.Cache.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shCtx)
}

func newStore(c config.Cache) (slotcache.Store, func(), error) {
	if c.Store != "redis" {
		return slotcache.NewMemoryStore(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", c.Redis.Addr, err)
	}
	// keep the key a little past the freshness window so Redis cleans up after us
	store := slotcache.NewRedisStore(rdb, c.Redis.Key, 2*c.TTL)
	return store, func() { rdb.Close() }, nil
}
