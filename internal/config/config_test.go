package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("expected defaults %#v, got %#v", want, cfg)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"serverName":"My Server","httpPort":9000}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerName != "My Server" || cfg.HttpPort != 9000 {
		t.Fatalf("unexpected merge result: %#v", cfg)
	}
	if cfg.GamePort != 12346 {
		t.Fatalf("expected untouched field to keep its default, got %d", cfg.GamePort)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"httpPort":9000,"httpService":true}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HTTP_PORT", "7000")
	t.Setenv("HTTP_SERVICE", "false")
	t.Setenv("ADMIN_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HttpPort != 7000 {
		t.Fatalf("expected HTTP_PORT env override, got %d", cfg.HttpPort)
	}
	if cfg.HttpService {
		t.Fatalf("expected HTTP_SERVICE=false override to apply")
	}
	if cfg.AdminToken != "env-token" {
		t.Fatalf("expected ADMIN_TOKEN env override, got %q", cfg.AdminToken)
	}
}

func TestPhiraMPHomeIsAdminDataPathAlias(t *testing.T) {
	t.Setenv("PHIRA_MP_HOME", "/var/lib/dotphira-mp")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminDataPath != "/var/lib/dotphira-mp" {
		t.Fatalf("expected PHIRA_MP_HOME alias to set AdminDataPath, got %q", cfg.AdminDataPath)
	}
}
