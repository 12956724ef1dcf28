package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/podguard/internal/config"
	"github.com/ppiankov/podguard/internal/denylist"
	"github.com/ppiankov/podguard/internal/policy"
)

func resetInitFlags() {
	initDir = ""
	initForce = false
}

func TestRunInit_HomeDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	resetInitFlags()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	configDir := filepath.Join(tmpDir, ".podguard")
	for _, name := range []string{"config.yaml", "policies.yaml", "denylist.yaml"} {
		if _, err := os.Stat(filepath.Join(configDir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(configDir, "policies.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "default_policy_id") {
		t.Error("policies.yaml missing default_policy_id")
	}

	data, err = os.ReadFile(filepath.Join(configDir, "denylist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "domains:") {
		t.Error("denylist.yaml missing domains section")
	}
}

func TestRunInit_GeneratedFilesLoad(t *testing.T) {
	dir := t.TempDir()
	resetInitFlags()
	initDir = dir
	defer resetInitFlags()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.Files.Policies != filepath.Join(dir, "policies.yaml") {
		t.Errorf("policies path = %q", cfg.Files.Policies)
	}
	if cfg.Storage.AuditLogPath != filepath.Join(dir, "audit.jsonl") {
		t.Errorf("audit path = %q", cfg.Storage.AuditLogPath)
	}
	if cfg.Server.Port != config.DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, config.DefaultPort)
	}

	if _, err := policy.LoadConfig(cfg.Files.Policies); err != nil {
		t.Errorf("generated policies do not load: %v", err)
	}

	dl, err := denylist.Load(cfg.Files.Denylist)
	if err != nil {
		t.Fatalf("generated denylist does not load: %v", err)
	}
	if blocked, _ := dl.IsBlocked("pastebin.com"); !blocked {
		t.Error("default denylist should block pastebin.com")
	}
}

func TestRunInit_KeepsExistingWithoutForce(t *testing.T) {
	dir := t.TempDir()
	resetInitFlags()
	initDir = dir
	defer resetInitFlags()

	path := filepath.Join(dir, "denylist.yaml")
	if err := os.WriteFile(path, []byte("domains: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "domains: []\n" {
		t.Error("existing denylist.yaml was overwritten without --force")
	}

	initForce = true
	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit --force failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "pastebin.com") {
		t.Error("--force did not rewrite denylist.yaml")
	}
}
