package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firefly-engineering/keyrelay/internal/admin"
	"github.com/firefly-engineering/keyrelay/internal/audit"
	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/keys"
	"github.com/firefly-engineering/keyrelay/internal/logging"
	"github.com/firefly-engineering/keyrelay/internal/monitor"
)

// resetFlags restores every flag to its default so tests do not leak state.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	cmd := rootCmd
	cmd.SetArgs(args)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	logging.SetUserOutput(&stdout, &stderr)

	err := cmd.Execute()

	// Reset args for next test
	cmd.SetArgs(nil)
	cmd.SetOut(nil)
	cmd.SetErr(nil)
	logging.SetUserOutput(nil, nil)

	return stdout.String(), stderr.String(), err
}

func newAdminServer(t *testing.T, keyList ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	admin.New(keys.NewStore(keyList)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand(t, "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	for _, want := range []string{"keyrelay", "serve", "keys", "status", "rotate", "watch", "audit", "--verbose", "--json"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Help output should contain %q", want)
		}
	}
}

func TestServeCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand(t, "serve", "--help")
	if err != nil {
		t.Fatalf("Help failed: %v", err)
	}

	for _, flag := range []string{"--port", "--target", "--prefix", "--keys-file", "--upstream-timeout", "--shutdown-timeout", "--audit-log", "--metrics"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("serve help should list %s", flag)
		}
	}
}

func TestServeConfig_Precedence(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KEYRELAY_TARGET", "https://env.example")
	t.Setenv("KEYRELAY_PREFIX", "/gemini/")
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	if err := serveCmd.Flags().Parse([]string{"--target", "https://flag.example", "--shutdown-timeout", "3s"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := serveConfig(serveCmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000 from env", cfg.Port)
	}
	if cfg.Target != "https://flag.example" {
		t.Errorf("Target = %q, want flag value", cfg.Target)
	}
	if cfg.Prefix != "/gemini" {
		t.Errorf("Prefix = %q, want normalized env value", cfg.Prefix)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 3s", cfg.ShutdownTimeout)
	}
	if !cfg.Metrics {
		t.Error("Metrics should default to enabled")
	}
}

func TestServeCommand_ConfigErrors(t *testing.T) {
	t.Setenv(keys.EnvVar, "")
	bad := filepath.Join(t.TempDir(), "keys.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"port out of range", []string{"serve", "--port", "70000"}},
		{"reserved prefix", []string{"serve", "--prefix", "/health"}},
		{"bad target", []string{"serve", "--target", "ftp://example.com"}},
		{"malformed key file", []string{"serve", "--keys-file", bad}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := errors.GetExitCode(err); code != errors.ExitConfigError {
				t.Errorf("exit code = %d (%v), want %d", code, err, errors.ExitConfigError)
			}
		})
	}
}

func TestKeysCommand_Env(t *testing.T) {
	list := []string{"AIzaSyA-first-key-0001", "AIzaSyB-second-key-0002"}
	t.Setenv(keys.EnvVar, strings.Join(list, ", "))

	stdout, _, err := executeCommand(t, "keys")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(stdout, "2 API keys from "+keys.EnvVar) {
		t.Errorf("output should name the env source:\n%s", stdout)
	}
	for _, k := range list {
		if strings.Contains(stdout, k) {
			t.Errorf("output leaked key %q", k)
		}
		if !strings.Contains(stdout, keys.Mask(k)) {
			t.Errorf("output missing masked key %q", keys.Mask(k))
		}
	}
}

func TestKeysCommand_File(t *testing.T) {
	t.Setenv(keys.EnvVar, "")
	path := filepath.Join(t.TempDir(), "keys.yaml")
	if err := os.WriteFile(path, []byte("keys:\n  - key-from-yaml-file-1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeCommand(t, "keys", "--keys-file", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "1 API keys from "+path) {
		t.Errorf("output should name the file source:\n%s", stdout)
	}
}

func TestKeysCommand_NoKeys(t *testing.T) {
	t.Setenv(keys.EnvVar, "")

	_, stderr, err := executeCommand(t, "keys", "--keys-file", filepath.Join(t.TempDir(), "missing.json"))
	if code := errors.GetExitCode(err); code != errors.ExitNoCredentials {
		t.Errorf("exit code = %d (%v), want %d", code, err, errors.ExitNoCredentials)
	}
	if !strings.Contains(stderr, "No API keys configured") {
		t.Errorf("stderr should warn about missing keys: %q", stderr)
	}
}

func TestStatusCommand(t *testing.T) {
	srv := newAdminServer(t, "a", "b")

	stdout, _, err := executeCommand(t, "status", "--addr", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Proxy: " + srv.URL, "healthy", "API keys: 2", "Next key: 0"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status output missing %q:\n%s", want, stdout)
		}
	}
}

func TestStatusCommand_Raw(t *testing.T) {
	srv := newAdminServer(t, "a")

	stdout, _, err := executeCommand(t, "status", "--addr", srv.URL, "--raw")
	if err != nil {
		t.Fatal(err)
	}
	var report admin.HealthReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("--raw output %q is not JSON: %v", stdout, err)
	}
	if report.APIKeysConfigured != 1 {
		t.Errorf("apiKeysConfigured = %d, want 1", report.APIKeysConfigured)
	}
}

func TestRotateCommand(t *testing.T) {
	srv := newAdminServer(t, "a", "b", "c")

	stdout, _, err := executeCommand(t, "rotate", "--addr", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "0 -> 1 (of 3 keys)") {
		t.Errorf("rotate output = %q", stdout)
	}

	stdout, _, err = executeCommand(t, "status", "--addr", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Next key: 1") {
		t.Errorf("status after rotate:\n%s", stdout)
	}
}

func TestRotateCommand_NoKeys(t *testing.T) {
	srv := newAdminServer(t)

	_, _, err := executeCommand(t, "rotate", "--addr", srv.URL)
	if code := errors.GetExitCode(err); code != errors.ExitNoCredentials {
		t.Errorf("exit code = %d (%v), want %d", code, err, errors.ExitNoCredentials)
	}
}

func TestWatchCommand_InvalidInterval(t *testing.T) {
	_, _, err := executeCommand(t, "watch", "--plain", "--interval", "0s")
	if code := errors.GetExitCode(err); code != errors.ExitConfigError {
		t.Errorf("exit code = %d (%v), want %d", code, err, errors.ExitConfigError)
	}
}

func TestPrintSample(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)

	var buf bytes.Buffer
	printSample(&buf, monitor.Sample{
		At:      at,
		Latency: 12 * time.Millisecond,
		Report:  &admin.HealthReport{Status: admin.StatusHealthy, APIKeysConfigured: 3, CurrentKeyIndex: 2},
	})
	if got, want := buf.String(), "[05:06:07] healthy keys=3 next=2 latency=12ms\n"; got != want {
		t.Errorf("printSample = %q, want %q", got, want)
	}

	buf.Reset()
	printSample(&buf, monitor.Sample{At: at, Err: errors.New(errors.ExitGeneralError, "connection refused")})
	if got := buf.String(); got != "[05:06:07] unreachable: connection refused\n" {
		t.Errorf("printSample = %q", got)
	}
}

func TestAuditCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := audit.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Log(audit.Entry{Method: "GET", Path: "/v1beta/models", Placement: "query", KeyIndex: 0, StatusCode: 200, Duration: 20 * time.Millisecond})
	l.Log(audit.Entry{Method: "POST", Path: "/v1beta/openai/chat/completions", Placement: "bearer", KeyIndex: 1, StatusCode: 500, Error: "upstream request failed: dial tcp: refused"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeCommand(t, "audit", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"/v1beta/models", "key=#0", "key=#1", "bearer", "dial tcp: refused"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("audit output missing %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = executeCommand(t, "audit", path, "--json", "--tail", "1")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 1 {
		t.Fatalf("--tail 1 printed %d lines", len(lines))
	}
	var e audit.Entry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatal(err)
	}
	if e.Method != "POST" || e.KeyIndex != 1 {
		t.Errorf("tail entry = %+v", e)
	}
}

func TestAuditCommand_Empty(t *testing.T) {
	stdout, _, err := executeCommand(t, "audit", filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "No entries found") {
		t.Errorf("output = %q", stdout)
	}
}

func TestCommandRequiresArgs(t *testing.T) {
	_, _, err := executeCommand(t, "audit")
	if err == nil {
		t.Error("audit without a path should fail")
	}
}
