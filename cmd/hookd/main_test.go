package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookd/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = stdoutW
	os.Stderr = stderrW

	outCh := make(chan []byte)
	errCh := make(chan []byte)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdout, stderr := <-outCh, <-errCh
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdout), string(stderr)
}

func runCaptured(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

// writeTestConfig creates a config directory whose state database lives in
// the same temp dir and returns the directory.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := "state:\n  path: " + filepath.Join(dir, "state.db") + "\n" + extra + `
handlers:
  - {entity: Order, context: before_create, order: 2, handler: StampTimestamps}
  - {entity: Order, context: before_create, order: 1, handler: RequireRecords}
  - {entity: Order, context: before_delete, order: 1, handler: BlockDelete}
  - {entity: Order, context: after_create, order: 1, handler: AuditLog}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func writeRecords(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

func TestVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-03-01T10:00:00+02:00")

	code, stdout, _ := runCaptured(t, "version", "--json")
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, versionInfo{Version: "1.2.3", Commit: "0123456789ab", BuildTime: "2026-03-01T08:00:00Z"}, info)
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCaptured(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")
}

func TestDispatchRunsHandlersInOrder(t *testing.T) {
	dir := writeTestConfig(t, "")
	records := writeRecords(t, `[{"total": 10}]`)

	code, stdout, stderr := runCaptured(t, "dispatch", "--config", dir, "--entity", "Order", "--context", "before-create", "--records", records)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "Dispatched Order/before_create: 2 handler(s)")

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	assert.Equal(t, float64(10), out[0]["total"])
	assert.NotEmpty(t, out[0]["created_at"])
	assert.NotEmpty(t, out[0]["updated_at"])

	code, stdout, _ = runCaptured(t, "journal", "--config", dir, "--json")
	require.Equal(t, 0, code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "succeeded", e["status"])
		assert.Equal(t, "before_create", e["context"])
	}
}

func TestDispatchFailures(t *testing.T) {
	dir := writeTestConfig(t, "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "handler rejects", args: []string{"--entity", "Order", "--context", "before_delete"}, wantErr: "delete is not allowed"},
		{name: "missing records", args: []string{"--entity", "Order", "--context", "before_create"}, wantErr: "event carries no records"},
		{name: "unknown entity", args: []string{"--entity", "Invoice", "--context", "before_create"}, wantErr: "no handlers registered"},
		{name: "unknown context", args: []string{"--entity", "Order", "--context", "before_restore"}, wantErr: "invalid context"},
		{name: "missing flags", args: []string{"--entity", "Order"}, wantErr: "--entity and --context are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"dispatch", "--config", dir}, tt.args...)
			code, _, stderr := runCaptured(t, args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.wantErr)
		})
	}
}

func TestDispatchUnusedContextIsNoop(t *testing.T) {
	dir := writeTestConfig(t, "")
	code, _, stderr := runCaptured(t, "dispatch", "--config", dir, "--entity", "Order", "--context", "after_restore")
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "0 handler(s)")
}

func TestRegistryShow(t *testing.T) {
	dir := writeTestConfig(t, "")

	code, stdout, stderr := runCaptured(t, "registry", "show", "--config", dir, "--entity", "Order", "--json")
	require.Equal(t, 0, code, stderr)

	var reports []struct {
		Entity   string `json:"entity"`
		Contexts []struct {
			Context  string `json:"context"`
			Handlers []struct {
				ID    string `json:"id"`
				State string `json:"state"`
			} `json:"handlers"`
		} `json:"contexts"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 1)
	first := reports[0].Contexts[0]
	assert.Equal(t, "before_create", first.Context)
	require.Len(t, first.Handlers, 2)
	assert.Equal(t, "RequireRecords", first.Handlers[0].ID)
	assert.Equal(t, "StampTimestamps", first.Handlers[1].ID)
	assert.Equal(t, "ok", first.Handlers[1].State)

	code, stdout, _ = runCaptured(t, "registry", "show", "--config", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "1. RequireRecords")

	code, _, stderr = runCaptured(t, "registry", "show", "--config", dir, "--entity", "Invoice")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no handlers registered")
}

func TestRegistryImportThenServeFromSQLite(t *testing.T) {
	dir := writeTestConfig(t, "")

	code, stdout, stderr := runCaptured(t, "registry", "import", "--config", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Imported 4 registration(s)")

	// Switch the same directory to the sqlite source without the YAML list.
	cfg := "state:\n  path: " + filepath.Join(dir, "state.db") + "\nsource: sqlite\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644))

	code, _, stderr = runCaptured(t, "dispatch", "--config", dir, "--entity", "Order", "--context", "before_delete")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "delete is not allowed")

	code, stdout, _ = runCaptured(t, "config", "check", "--config", dir)
	assert.Equal(t, 0, code, stdout)
}

func TestRegistryAddListDeactivate(t *testing.T) {
	dir := t.TempDir()
	cfg := "state:\n  path: " + filepath.Join(dir, "state.db") + "\nsource: sqlite\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644))

	code, stdout, stderr := runCaptured(t, "registry", "add", "--config", dir,
		"--entity", "Order", "--context", "before-delete", "--order", "1", "--handler", "BlockDelete")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Added registration 1: Order/before_delete BlockDelete")

	code, _, stderr = runCaptured(t, "registry", "add", "--config", dir,
		"--entity", "Order", "--context", "after_create", "--order", "1", "--handler", "NotCompiled")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, `handler "NotCompiled" is not compiled into this binary`)

	code, _, stderr = runCaptured(t, "registry", "add", "--config", dir,
		"--entity", "Order", "--context", "before_restore", "--handler", "AuditLog")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid context")

	code, _, stderr = runCaptured(t, "dispatch", "--config", dir, "--entity", "Order", "--context", "before_delete")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "delete is not allowed")

	code, stdout, stderr = runCaptured(t, "registry", "deactivate", "--config", dir, "--id", "1")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Deactivated registration 1")

	code, _, stderr = runCaptured(t, "registry", "deactivate", "--config", dir, "--id", "99")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")

	code, _, stderr = runCaptured(t, "dispatch", "--config", dir, "--entity", "Order", "--context", "before_delete")
	assert.Equal(t, 0, code, stderr)

	code, stdout, stderr = runCaptured(t, "registry", "list", "--config", dir, "--json")
	require.Equal(t, 0, code, stderr)
	var rows []struct {
		ID      int64  `json:"id"`
		Handler string `json:"handler"`
		Context string `json:"context"`
		Active  bool   `json:"active"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "BlockDelete", rows[0].Handler)
	assert.Equal(t, "before_delete", rows[0].Context)
	assert.False(t, rows[0].Active)
	assert.True(t, rows[1].Active)
}

func TestHandlersList(t *testing.T) {
	code, stdout, _ := runCaptured(t, "handlers", "--json")
	require.Equal(t, 0, code)

	var infos []struct {
		ID       string   `json:"id"`
		Contexts []string `json:"contexts"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &infos))

	byID := map[string][]string{}
	for _, i := range infos {
		byID[i.ID] = i.Contexts
	}
	assert.Equal(t, []string{"before_delete"}, byID["BlockDelete"])
	assert.Len(t, byID["AuditLog"], 7)
}

func TestConfigCheck(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		dir := writeTestConfig(t, "")
		code, stdout, _ := runCaptured(t, "config", "check", "--config", dir)
		assert.Equal(t, 0, code, stdout)
		assert.Contains(t, stdout, "Configuration valid.")
	})

	t.Run("warnings", func(t *testing.T) {
		dir := writeTestConfig(t, "api:\n  enabled: true\n")
		code, stdout, _ := runCaptured(t, "config", "check", "--config", dir)
		assert.Equal(t, 2, code, stdout)
		assert.Contains(t, stdout, "no authentication")
	})

	t.Run("handler wiring errors", func(t *testing.T) {
		dir := t.TempDir()
		body := "state:\n  path: " + filepath.Join(dir, "state.db") + `
handlers:
  - {entity: Order, context: after_delete, order: 1, handler: BlockDelete}
  - {entity: Order, context: after_delete, order: 2, handler: Ghost}
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))

		code, stdout, _ := runCaptured(t, "config", "check", "--config", dir, "--json")
		assert.Equal(t, 1, code)
		assert.Contains(t, stdout, `"valid": false`)
		assert.Contains(t, stdout, "Ghost")
		assert.Contains(t, stdout, "does not support after_delete")
	})
}

func TestConfigLockDetectsTampering(t *testing.T) {
	dir := writeTestConfig(t, "")

	code, stdout, stderr := runCaptured(t, "config", "lock", "--config", dir, "-v")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "HASH config.yaml")
	assert.FileExists(t, filepath.Join(dir, ".checksums"))

	code, _, _ = runCaptured(t, "config", "check", "--config", dir)
	require.Equal(t, 0, code)

	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), "order: 2", "order: 0", 1)), 0o644))

	code, _, stderr = runCaptured(t, "config", "check", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "hookd config lock")
}
