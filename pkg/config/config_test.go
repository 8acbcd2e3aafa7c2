package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 20, cfg.Geocoder.MaxQueryTokens)
	assert.Equal(t, 256, cfg.Geocoder.MaxQueryChars)
	assert.Equal(t, 100, cfg.Geocoder.StackableLimit)
	assert.Equal(t, 30, cfg.Geocoder.StackLimit)
	assert.Equal(t, 200.0, cfg.Geocoder.ProximityRadius)
	assert.Empty(t, cfg.Sources)
	assert.Equal(t, "geocode-queries", cfg.Kafka.Topics.QueryEvents)
	assert.Equal(t, 10, cfg.Analytics.TopN)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadYAMLWithSources(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
geocoder:
  stackLimit: 10
  timeout: 2s
sources:
  - name: country
    type: country
    zoom: 6
  - name: address
    type: address
    zoom: 14
    address: true
    intersection: "+intersection"
    frequentWords: [st, street]
    bmask: [country]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Geocoder.StackLimit)
	assert.Equal(t, 2*time.Second, cfg.Geocoder.Timeout)
	assert.Equal(t, 20, cfg.Geocoder.MaxQueryTokens, "unset fields keep defaults")
	require.Len(t, cfg.Sources, 2)
	addr := cfg.Sources[1]
	assert.True(t, addr.Address)
	assert.Equal(t, "+intersection", addr.Intersection)
	assert.Equal(t, []string{"st", "street"}, addr.Frequent)
	assert.Equal(t, []string{"country"}, addr.BMask)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEO_SERVER_PORT", "7000")
	t.Setenv("GEO_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("GEO_REDIS_ENABLED", "true")
	t.Setenv("GEO_STORE_BACKEND", "badger")
	t.Setenv("GEO_STORE_DATA_DIR", "/var/lib/geo")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/geo", cfg.Store.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "store:\n  backend: rocks\n"},
		{"badger without dir", "store:\n  backend: badger\n"},
		{"unnamed source", "sources:\n  - zoom: 6\n"},
		{"duplicate source", "sources:\n  - name: a\n  - name: a\n"},
		{"zoom out of range", "sources:\n  - name: a\n    zoom: 20\n"},
		{"unknown bmask", "sources:\n  - name: a\n    bmask: [b]\n"},
		{"auth without postgres", "auth:\n  enabled: true\n"},
		{"unknown log level", "logging:\n  level: loud\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
		{"too many sources", tooManySources()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		})
	}
}

func tooManySources() string {
	var b strings.Builder
	b.WriteString("sources:\n")
	for i := 0; i <= MaxSources; i++ {
		fmt.Fprintf(&b, "  - name: s%d\n", i)
	}
	return b.String()
}

func TestValidateSourceLimit(t *testing.T) {
	tests := []struct {
		name    string
		sources int
		wantErr bool
	}{
		{"none", 0, false},
		{"at limit", MaxSources, false},
		{"over limit", MaxSources + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			for i := 0; i < tt.sources; i++ {
				cfg.Sources = append(cfg.Sources, SourceConfig{Name: fmt.Sprintf("s%d", i)})
			}
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
