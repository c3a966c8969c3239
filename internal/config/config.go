// Package config loads gateway settings from an optional YAML file with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingBackendURL = errors.New("config: backend url is required (APPS_SCRIPT_URL)")
	ErrMissingRedisAddr  = errors.New("config: cache.redis.addr is required when cache.store is redis")
)

// Config holds all gateway configuration.
type Config struct {
	Server  Server  `yaml:"server"`
	Backend Backend `yaml:"backend"`
	Cache   Cache   `yaml:"cache"`
	Auth    Auth    `yaml:"auth"`
	CORS    CORS    `yaml:"cors"`
}

// Server holds the listener settings.
type Server struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address for Port.
func (s Server) Addr() string { return ":" + strconv.Itoa(s.Port) }

// Backend points at the remote scripting backend.
type Backend struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Cache configures the next-available-slots cache.
type Cache struct {
	TTL   time.Duration `yaml:"ttl"`
	Store string        `yaml:"store"` // "memory" | "redis"
	Redis Redis         `yaml:"redis"`
}

// Redis holds the shared cache store connection.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// Auth protects the admin routes. Empty JWTSecret leaves them open.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// CORS lists origins allowed to call the API from a browser.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			Port:            3000,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: Backend{
			Timeout: 30 * time.Second,
		},
		Cache: Cache{
			TTL:   2 * time.Minute,
			Store: "memory",
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path or a missing file means defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("APPS_SCRIPT_URL"); ok && v != "" {
		cfg.Backend.URL = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if v, ok := lookup("CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	if v, ok := lookup("BACKEND_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: BACKEND_TIMEOUT: %w", err)
		}
		cfg.Backend.Timeout = d
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		cfg.Cache.Store = "redis"
		cfg.Cache.Redis.Addr = v
	}
	if v, ok := lookup("ADMIN_JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
	return nil
}

// Validate checks that the configuration can start a gateway.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return ErrMissingBackendURL
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: backend url %q must be an absolute http(s) URL", c.Backend.URL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("config: backend timeout must not be negative, got %s", c.Backend.Timeout)
	}
	switch c.Cache.Store {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("config: unknown cache store %q (want memory or redis)", c.Cache.Store)
	}
	return nil
}
