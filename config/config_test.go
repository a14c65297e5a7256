package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mjpowersjr/block-hash-experiments/constants"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blockrace.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Horses != 12 || cfg.Distance != 100 || cfg.PollDelay != 3*time.Second || cfg.Start != "latest" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RequiredHashBytes() != 24 {
		t.Errorf("RequiredHashBytes = %d", cfg.RequiredHashBytes())
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RPCURL != constants.RPCURL {
		t.Errorf("RPCURL = %q", cfg.RPCURL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
rpc_url: https://rpc.example
horses: 4
distance: 50
poll_delay: 500ms
start: "-5"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RPCURL != "https://rpc.example" || cfg.Horses != 4 || cfg.Distance != 50 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.PollDelay != 500*time.Millisecond {
		t.Errorf("PollDelay = %v", cfg.PollDelay)
	}
	if cfg.Start != "-5" {
		t.Errorf("Start = %q", cfg.Start)
	}
	// Unset keys keep their defaults.
	if cfg.ChunkBytes != constants.ChunkBytes || cfg.LogLevel != "warn" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "horses: 4\nws_url: wss://file.example\n")
	t.Setenv("BLOCKRACE_HORSES", "6")
	t.Setenv("BLOCKRACE_POLL_DELAY", "1s")
	t.Setenv("BLOCKRACE_JOURNAL", "/tmp/race.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Horses != 6 {
		t.Errorf("Horses = %d, want env value 6", cfg.Horses)
	}
	if cfg.WSURL != "wss://file.example" {
		t.Errorf("WSURL = %q, want file value", cfg.WSURL)
	}
	if cfg.PollDelay != time.Second || cfg.Journal != "/tmp/race.db" {
		t.Errorf("env values not applied: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := Load(writeFile(t, "horses: [1, 2\n")); err == nil {
		t.Error("malformed YAML accepted")
	}

	t.Setenv("BLOCKRACE_POLL_DELAY", "soon")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("bad env duration: err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no rpc", func(c *Config) { c.RPCURL = "" }, "rpc_url"},
		{"no horses", func(c *Config) { c.Horses = 0 }, "horses"},
		{"zero distance", func(c *Config) { c.Distance = 0 }, "distance"},
		{"chunk too wide", func(c *Config) { c.ChunkBytes = 9 }, "chunk_bytes"},
		{"chunk zero", func(c *Config) { c.ChunkBytes = 0 }, "chunk_bytes"},
		{"modulus", func(c *Config) { c.PaceModulus = 0 }, "pace_modulus"},
		{"negative delay", func(c *Config) { c.PollDelay = -time.Second }, "poll_delay"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -1 }, "request_timeout"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Horses = 0
	cfg.PaceModulus = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "horses") || !strings.Contains(err.Error(), "pace_modulus") {
		t.Errorf("Validate() = %v", err)
	}
}

func TestPaceOptions(t *testing.T) {
	cfg := Default()
	cfg.ChunkBytes = 4
	opts := cfg.PaceOptions()
	if opts.ChunkBytes != 4 || opts.Modulus != constants.PaceModulus {
		t.Errorf("PaceOptions = %+v", opts)
	}
	if err := opts.Validate(); err != nil {
		t.Error(err)
	}
}
