package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mapEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

func TestConfigFromEnv(t *testing.T) {
	assert := assert.New(t)

	cfg, err := configFromEnv(mapEnv(map[string]string{
		"MONGODB_URI":             "mongodb://127.0.0.1:27017",
		"MONGODB_TRANSACTIONS":    "true",
		"JOURNAL_REPLAY_INTERVAL": "30s",
		"ALLOW_SELF_FOLLOW":       "true",
	}))
	if !assert.NoError(err) {
		return
	}
	assert.Equal(storeMongo, cfg.store)
	assert.Equal("blogsphare", cfg.mongoDatabase)
	assert.True(cfg.mongoTransactions)
	assert.Equal(30*time.Second, cfg.replayInterval)
	assert.Equal(10*time.Second, cfg.storeTimeout)
	assert.Equal(":3000", cfg.listenAddr)
	assert.True(cfg.allowSelfFollow)
	assert.False(cfg.debug)
}

func TestConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"mongo without uri", map[string]string{}},
		{"postgres without dsn", map[string]string{"STORE": "postgres"}},
		{"unknown store", map[string]string{"STORE": "cassandra"}},
		{"bad interval", map[string]string{"STORE": "memory", "JOURNAL_REPLAY_INTERVAL": "often"}},
		{"negative timeout", map[string]string{"STORE": "memory", "STORE_TIMEOUT": "-1s"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := configFromEnv(mapEnv(c.env))
			assert.Error(t, err)
		})
	}
}

func TestConfigFromEnvMemory(t *testing.T) {
	assert := assert.New(t)

	cfg, err := configFromEnv(mapEnv(map[string]string{"STORE": "memory", "LISTEN_ADDR": "127.0.0.1:8080"}))
	if !assert.NoError(err) {
		return
	}
	assert.Equal(storeMemory, cfg.store)
	assert.Equal("127.0.0.1:8080", cfg.listenAddr)
	assert.Equal(time.Minute, cfg.replayInterval)
}
