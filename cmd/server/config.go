package main

import (
	"fmt"
	"strconv"
	"time"
)

const (
	storeMongo    = "mongo"
	storePostgres = "postgres"
	storeMemory   = "memory"
)

type config struct {
	store string

	mongoUri          string
	mongoDatabase     string
	mongoTransactions bool

	pgDsn string

	journalPath    string
	replayInterval time.Duration
	storeTimeout   time.Duration

	allowOrigins    string
	listenAddr      string
	allowSelfFollow bool

	debug  bool
	syslog bool
}

// configFromEnv reads the configuration through getenv (os.Getenv outside of tests).
func configFromEnv(getenv func(string) string) (config, error) {
	envOr := func(key string, fallback string) string {
		if value := getenv(key); value != "" {
			return value
		}
		return fallback
	}
	boolEnv := func(key string) bool {
		return getenv(key) == "true"
	}
	durationEnv := func(key string, fallback time.Duration) (time.Duration, error) {
		value := getenv(key)
		if value == "" {
			return fallback, nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("%s: must be positive, got %s", key, strconv.Quote(value))
		}
		return d, nil
	}

	cfg := config{
		store:             envOr("STORE", storeMongo),
		mongoUri:          getenv("MONGODB_URI"),
		mongoDatabase:     envOr("MONGODB_DATABASE", "blogsphare"),
		mongoTransactions: boolEnv("MONGODB_TRANSACTIONS"),
		pgDsn:             getenv("POSTGRES_DSN"),
		journalPath:       envOr("JOURNAL_PATH", "journal.db"),
		allowOrigins:      envOr("ALLOW_ORIGINS", "*"),
		listenAddr:        envOr("LISTEN_ADDR", ":3000"),
		allowSelfFollow:   boolEnv("ALLOW_SELF_FOLLOW"),
		debug:             boolEnv("DEBUG"),
		syslog:            boolEnv("SYSLOG"),
	}

	var err error
	if cfg.replayInterval, err = durationEnv("JOURNAL_REPLAY_INTERVAL", time.Minute); err != nil {
		return config{}, err
	}
	if cfg.storeTimeout, err = durationEnv("STORE_TIMEOUT", 10*time.Second); err != nil {
		return config{}, err
	}

	switch cfg.store {
	case storeMongo:
		if cfg.mongoUri == "" {
			return config{}, fmt.Errorf("MONGODB_URI not set")
		}
	case storePostgres:
		if cfg.pgDsn == "" {
			return config{}, fmt.Errorf("POSTGRES_DSN not set")
		}
	case storeMemory:
	default:
		return config{}, fmt.Errorf("STORE: unknown store %s", strconv.Quote(cfg.store))
	}
	return cfg, nil
}
