package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestConfigLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HAMHIBOKKA_HOME", home)

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.StoreDriver != DriverBadger {
		t.Fatalf("expected badger default, got %q", cfg.StoreDriver)
	}
	if cfg.StorePath != filepath.Join(home, "session.badger") {
		t.Fatalf("unexpected store path %q", cfg.StorePath)
	}
	if cfg.QueueSize != 64 || cfg.EnqueueTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected queue defaults: %+v", cfg)
	}
	if cfg.Environment != EnvDevelopment || cfg.IsProduction() || cfg.IsTesting() {
		t.Fatalf("unexpected environment: %q", cfg.Environment)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HAMHIBOKKA_HOME", home)
	t.Setenv("HAMHIBOKKA_STORE_DRIVER", "sqlite")
	t.Setenv("HAMHIBOKKA_QUEUE_SIZE", "8")
	t.Setenv("HAMHIBOKKA_PUSH_URL", "ws://localhost:9000/push")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.StoreDriver != DriverSQLite || cfg.StorePath != filepath.Join(home, "session.db") {
		t.Fatalf("unexpected store config: %+v", cfg)
	}
	if cfg.QueueSize != 8 || cfg.PushURL != "ws://localhost:9000/push" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestResolveDefaults(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory needs no path", Config{StoreDriver: DriverMemory, QueueSize: 1}, false},
		{"explicit path kept", Config{StoreDriver: DriverSQLite, StorePath: "/tmp/x.db", QueueSize: 1}, false},
		{"unknown driver", Config{StoreDriver: "redis", QueueSize: 1}, true},
		{"zero queue", Config{StoreDriver: DriverMemory}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			err := cfg.ResolveDefaults()
			if (err != nil) != tc.wantErr {
				t.Fatalf("ResolveDefaults err=%v wantErr=%v", err, tc.wantErr)
			}
			if tc.name == "explicit path kept" && cfg.StorePath != "/tmp/x.db" {
				t.Fatalf("explicit path overwritten: %q", cfg.StorePath)
			}
		})
	}
}

func TestNewForTesting(t *testing.T) {
	cfg := NewForTesting()
	if !cfg.IsTesting() || cfg.StoreDriver != DriverMemory {
		t.Fatalf("unexpected testing config: %+v", cfg)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("testing config must resolve: %v", err)
	}
}
