package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/auth"
	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/rf"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config load failure", err)
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", writeTestConfig(t, `
site:
  id: test-site
database:
  path: ""
protocols:
  cul:
    enabled: true
    config_file: ./cul.yaml
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")
	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}

	t.Setenv("GRAYLOGIC_CONFIG", "/custom/path/config.yaml")
	if path := getConfigPath(); path != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", path)
	}
}

func TestEnabledBridges(t *testing.T) {
	cfg := &config.Config{
		Protocols: config.ProtocolsConfig{
			CUL:     config.BridgeConfig{Enabled: true, ConfigFile: "cul.yaml"},
			OneWire: config.BridgeConfig{Enabled: false, ConfigFile: "onewire.yaml"},
		},
	}
	entries := enabledBridges(cfg)
	if len(entries) != 1 || entries[0].protocol != rf.ProtocolCUL || entries[0].configFile != "cul.yaml" {
		t.Errorf("enabledBridges() = %+v, want cul only", entries)
	}

	cfg.Protocols.OneWire.Enabled = true
	if entries := enabledBridges(cfg); len(entries) != 2 || entries[1].protocol != rf.ProtocolOneWire {
		t.Errorf("enabledBridges() = %+v, want cul and onewire", entries)
	}
}

func TestStartBridge_MissingConfig(t *testing.T) {
	deps := bridgeDeps{log: logging.New(config.LoggingConfig{Level: "error"}, "test")}
	entry := bridgeEntry{protocol: rf.ProtocolCUL, configFile: filepath.Join(t.TempDir(), "absent.yaml")}

	if _, err := startBridge(context.Background(), entry, deps); err == nil {
		t.Error("startBridge() should fail for a missing bridge config")
	}
}

func TestRunToken(t *testing.T) {
	var out bytes.Buffer
	err := runToken([]string{"-subject", "installer", "-role", "operator", "-ttl", "1h", "-secret", testSecret}, &out)
	if err != nil {
		t.Fatalf("runToken() error: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "installer" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("lifetime = %v, want 1h", got)
	}
}

func TestRunToken_SecretFromConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", writeTestConfig(t, `
api:
  jwt_secret: "`+testSecret+`"
`))

	var out bytes.Buffer
	if err := runToken([]string{"-subject", "wall-panel"}, &out); err != nil {
		t.Fatalf("runToken() error: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Role != auth.RoleViewer {
		t.Errorf("Role = %q, want viewer default", claims.Role)
	}
}

func TestRunToken_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing subject", []string{"-secret", testSecret}},
		{"unknown role", []string{"-subject", "x", "-role", "admin", "-secret", testSecret}},
		{"unknown flag", []string{"-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runToken(tt.args, &bytes.Buffer{}); err == nil {
				t.Error("runToken() should fail")
			}
		})
	}
}
