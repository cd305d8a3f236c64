package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type config struct {
	StorageConnStr   string
	HabitsTable      string
	CompletionsTable string
	EventsQueue      string

	RedisConn      string
	CacheTTL       time.Duration
	DeduperTTL     time.Duration
	GroupLockTTL   time.Duration
	GroupLockWait  time.Duration
	UpdatesChannel string

	PublishWorkers int
	PublishBuffer  int

	Auth0Domain   string
	Auth0Audience string
	SharedSecret  string
	JWKSCacheTTL  time.Duration

	Port  string
	Debug bool
}

func loadConfig() (config, error) {
	cfg := config{
		StorageConnStr:   os.Getenv("STORAGE_CONNECTION_STRING"),
		HabitsTable:      os.Getenv("HABITS_TABLE"),
		CompletionsTable: os.Getenv("COMPLETIONS_TABLE"),
		EventsQueue:      os.Getenv("HABIT_EVENTS_QUEUE"),
		RedisConn:        os.Getenv("REDIS_CONNECTION_STRING"),
		UpdatesChannel:   envString("UPDATES_CHANNEL", "habit-updates"),
		Auth0Domain:      os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:    os.Getenv("AUTH0_AUDIENCE"),
		Port:             envString("PORT", "8080"),
	}
	if cfg.StorageConnStr == "" || cfg.HabitsTable == "" || cfg.CompletionsTable == "" {
		return cfg, errors.New("missing storage config")
	}
	if cfg.RedisConn == "" {
		return cfg, errors.New("missing redis config")
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		cfg.Debug = dbg
	}

	var err error
	if cfg.CacheTTL, err = envDur("CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.DeduperTTL, err = envDur("DEDUPER_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.GroupLockTTL, err = envDur("GROUP_LOCK_TTL", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.GroupLockWait, err = envDur("GROUP_LOCK_WAIT", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.JWKSCacheTTL, err = envDur("JWKS_CACHE_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.PublishWorkers, err = envInt("PUBLISH_WORKERS", 4); err != nil {
		return cfg, err
	}
	if cfg.PublishBuffer, err = envInt("PUBLISH_BUFFER", 256); err != nil {
		return cfg, err
	}

	switch {
	case os.Getenv("AUTH0_TEST_MODE") == "1":
		cfg.SharedSecret = os.Getenv("TEST_JWT_SECRET")
		if cfg.SharedSecret == "" {
			return cfg, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
	case os.Getenv("LOCAL_AUTH_MODE") == "1":
		cfg.SharedSecret = os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if cfg.SharedSecret == "" {
			return cfg, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=1")
		}
	case cfg.Auth0Domain == "" || cfg.Auth0Audience == "":
		return cfg, errors.New("missing Auth0 config")
	}
	return cfg, nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", name)
	}
	return n, nil
}

func envDur(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", name)
	}
	return d, nil
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
