package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Nil(t, cfg.Validate(), "Defaults don't validate")
	require.Equal(t, "output.txt", cfg.Output)
	require.Equal(t, TransportLocal, cfg.Transport)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psrs.yaml")
	raw := `
procs: 6
transport: websocket
localWorkers: 2
connectTimeout: 3s
bench:
  sizes: [10, 100]
  procs: [2]
`
	require.Nil(t, os.WriteFile(path, []byte(raw), 0600))

	cfg, err := Load(path)
	require.Nil(t, err, "Failed to load config")
	require.Equal(t, 6, cfg.Procs)
	require.Equal(t, TransportWebsocket, cfg.Transport)
	require.Equal(t, 2, cfg.LocalWorkers)
	require.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	require.Equal(t, []int{10, 100}, cfg.Bench.Sizes)
	require.Equal(t, []int{2}, cfg.Bench.Procs)

	// Unset fields keep their defaults
	require.Equal(t, "text", cfg.Format)
	require.Equal(t, 3, cfg.Bench.Repeat)
	require.Nil(t, cfg.Validate())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NotNil(t, err, "Missing explicit config accepted")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.Nil(t, os.WriteFile(bad, []byte("procs: [1, 2"), 0600))
	_, err = Load(bad)
	require.NotNil(t, err, "Malformed config accepted")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		field  string
		modify func(*Config)
	}{
		{"procs", func(c *Config) { c.Procs = 0 }},
		{"transport", func(c *Config) { c.Transport = "mpi" }},
		{"localWorkers", func(c *Config) { c.LocalWorkers = -2 }},
		{"format", func(c *Config) { c.Format = "csv" }},
		{"output", func(c *Config) { c.Output = "" }},
		{"connectTimeout", func(c *Config) { c.ConnectTimeout = 0 }},
		{"bench.repeat", func(c *Config) { c.Bench.Repeat = 0 }},
		{"bench.procs", func(c *Config) { c.Bench.Procs = []int{2, 0} }},
	}

	for _, c := range cases {
		cfg := Defaults()
		c.modify(cfg)

		err := cfg.Validate()
		var verr *ValidationError
		require.Truef(t, errors.As(err, &verr), "Invalid %v accepted", c.field)
		require.Equal(t, c.field, verr.Field)
	}
}
