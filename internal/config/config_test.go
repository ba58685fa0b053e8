package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"unsupported driver", func(c *Config) { c.Driver = "mysql" }, true},
		{"postgres without dsn", func(c *Config) { c.Driver = "postgres"; c.DSN = "" }, true},
		{"postgres with dsn", func(c *Config) { c.Driver = "postgres"; c.DSN = "postgres://x" }, false},
		{"queue size zero", func(c *Config) { c.MaxQueueSize = 0 }, true},
		{"distributed without redis or postgres", func(c *Config) { c.Distributed = true }, true},
		{"distributed with redis url", func(c *Config) { c.Distributed = true; c.RedisURL = "redis://localhost:6379" }, false},
		{"distributed with postgres driver", func(c *Config) { c.Distributed = true; c.Driver = "postgres"; c.DSN = "postgres://x" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsDev(t *testing.T) {
	assert.True(t, Config{Mode: ModeDev}.IsDev())
	assert.True(t, Config{Mode: ModeDemo}.IsDev())
	assert.False(t, Config{Mode: ModeProd}.IsDev())
}
