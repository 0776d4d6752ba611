package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected default listen addr ':8080', got %q", cfg.ListenAddr)
	}
	if cfg.MaxMessageLen != 2000 {
		t.Errorf("expected default max message length 2000, got %d", cfg.MaxMessageLen)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("expected no redis addr by default, got %q", cfg.RedisAddr)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("listen_addr: \":9000\"\nmax_message_len: 500\nmessage_rate: 2\nmessage_burst: 4\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("expected listen addr ':9000', got %q", cfg.ListenAddr)
	}
	if cfg.MaxMessageLen != 500 {
		t.Errorf("expected max message length 500, got %d", cfg.MaxMessageLen)
	}
	if cfg.MessageRate != 2 || cfg.MessageBurst != 4 {
		t.Errorf("unexpected rate settings: %v/%d", cfg.MessageRate, cfg.MessageBurst)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LISTEN_ADDR", ":7000")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("expected env to override file, got %q", cfg.ListenAddr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected redis addr from env, got %q", cfg.RedisAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty listen addr", "listen_addr: \"\"\n"},
		{"zero max message len", "max_message_len: 0\n"},
		{"negative max conns", "max_conns: -1\n"},
		{"negative rate", "message_rate: -1\n"},
		{"rate without burst", "message_rate: 5\nmessage_burst: 0\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(c.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
