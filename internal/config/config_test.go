package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidatesOnlyWithSeed(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Default() to fail validation without a seed")
	}
	cfg.SeedHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFileOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roughtimed.yaml")
	contents := "interface: 10.0.0.1\nport: 9999\nbatch_size: 32\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	base := Default()
	cfg, err := LoadFile(base, path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Interface != "10.0.0.1" {
		t.Errorf("Interface = %q, want 10.0.0.1", cfg.Interface)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.BatchSize != 32 {
		t.Errorf("BatchSize = %d, want 32", cfg.BatchSize)
	}
	// Untouched field keeps the base's value.
	if cfg.NumWorkers != base.NumWorkers {
		t.Errorf("NumWorkers = %d, want unchanged %d", cfg.NumWorkers, base.NumWorkers)
	}
}

func TestLoadFileMissingPathIsNotAnError(t *testing.T) {
	base := Default()
	cfg, err := LoadFile(base, filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg != base {
		t.Error("missing file should leave config untouched")
	}
}

func TestLoadEnvOverridesFileLayer(t *testing.T) {
	base := Default()
	base.Port = 1111

	t.Setenv(envPort, "2222")
	t.Setenv(envInterface, "192.168.1.1")

	cfg, err := LoadEnv(base)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if cfg.Port != 2222 {
		t.Errorf("Port = %d, want 2222 (env overrides file/default layer)", cfg.Port)
	}
	if cfg.Interface != "192.168.1.1" {
		t.Errorf("Interface = %q, want 192.168.1.1", cfg.Interface)
	}
}

func TestLoadEnvAggregatesParseErrors(t *testing.T) {
	t.Setenv(envPort, "not-a-number")
	t.Setenv(envBatchSize, "also-not-a-number")

	_, err := LoadEnv(Default())
	if err == nil {
		t.Fatal("expected an error from malformed env vars")
	}
	msg := err.Error()
	if !containsAll(msg, envPort, envBatchSize) {
		t.Errorf("expected both malformed vars named in error, got: %s", msg)
	}
}

func TestBindFlagsOverridesEnvLayer(t *testing.T) {
	base := Default()
	base.Port = 3333
	base.BatchSize = 10

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	resolve := BindFlags(fs, base)
	if err := fs.Parse([]string{"--port=4444", "--rotation-interval=30m"}); err != nil {
		t.Fatal(err)
	}

	cfg := resolve()
	if cfg.Port != 4444 {
		t.Errorf("Port = %d, want 4444 (flag overrides everything else)", cfg.Port)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want unchanged 10 from base", cfg.BatchSize)
	}
	if cfg.RotationInterval != 30*time.Minute {
		t.Errorf("RotationInterval = %v, want 30m", cfg.RotationInterval)
	}
}

func TestValidateRejectsUnknownSecretBackend(t *testing.T) {
	cfg := Default()
	cfg.SecretBackend = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown secret backend")
	}
}

func TestValidateRejectsZeroBatchSize(t *testing.T) {
	cfg := Default()
	cfg.SeedHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	cfg.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for batch_size 0")
	}
}

func TestSeedRejectsWrongLength(t *testing.T) {
	cfg := Default()
	cfg.SeedHex = "aabb"
	if _, err := cfg.Seed(); err == nil {
		t.Fatal("expected an error for a too-short seed")
	}
}

func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
