package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/config"
	"github.com/mattjoyce/lookout/internal/events"
	"github.com/mattjoyce/lookout/internal/lock"
)

const testSeed = `
source: warehouse
tables:
  - name: orders
    keywords: [sales]
    columns:
      - name: order_id
        keywords: [key]
      - name: customer_id
  - name: customers
    columns:
      - name: email
        keywords: [pii]
`

func captureOutputWithExitCode(t *testing.T, input string, run func() int) (int, string, string) {
	t.Helper()

	oldStdout, oldStderr, oldStdin := stdout, stderr, stdin
	var out, errOut bytes.Buffer
	stdout, stderr, stdin = &out, &errOut, strings.NewReader(input)
	t.Cleanup(func() { stdout, stderr, stdin = oldStdout, oldStderr, oldStdin })

	code := run()

	stdout, stderr, stdin = oldStdout, oldStderr, oldStdin
	return code, out.String(), errOut.String()
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

// writeTestConfig lays out a config with one seed file and returns the config path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seeds := filepath.Join(dir, "seeds")
	if err := os.MkdirAll(seeds, 0o755); err != nil {
		t.Fatalf("mkdir seeds: %v", err)
	}
	if err := os.WriteFile(filepath.Join(seeds, "warehouse.yaml"), []byte(testSeed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	cfg := `
service:
  log_level: error
catalog:
  path: data/catalog.db
  seeds:
    - seeds/**/*.yaml
search:
  debounce_interval: 20ms
`
	path := filepath.Join(dir, "lookout.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunCLIRootVersionFlag(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-02-12T11:30:00-05:00")

	code, out, errOut := captureOutputWithExitCode(t, "", func() int {
		return runCLI([]string{"--version"})
	})
	if code != 0 {
		t.Fatalf("runCLI(--version) code = %d, stderr: %s", code, errOut)
	}
	for _, want := range []string{"lookout 1.2.3", "commit: 0123456789ab", "built_at: 2026-02-12T16:30:00Z"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	setVersionMetadataForTest(t, "2.0.0-rc.1", "aabbccddeeff001122334455", "2026-02-12T11:30:00-05:00")

	code, out, errOut := captureOutputWithExitCode(t, "", func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d, stderr: %s", code, errOut)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("failed to parse version JSON: %v\noutput=%s", err, out)
	}
	if info.Version != "2.0.0-rc.1" || info.Commit != "aabbccddeeff" || info.BuildTime != "2026-02-12T16:30:00Z" {
		t.Fatalf("unexpected version info: %+v", info)
	}
}

func TestRunVersionRejectsArguments(t *testing.T) {
	code, _, errOut := captureOutputWithExitCode(t, "", func() int {
		return runVersion([]string{"extra"})
	})
	if code != 1 || !strings.Contains(errOut, "Usage: lookout version") {
		t.Fatalf("code = %d, stderr = %q", code, errOut)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, errOut := captureOutputWithExitCode(t, "", func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != 1 || !strings.Contains(errOut, "Unknown command: frobnicate") {
		t.Fatalf("code = %d, stderr = %q", code, errOut)
	}
}

func TestRunCLIHelp(t *testing.T) {
	code, out, _ := captureOutputWithExitCode(t, "", func() int {
		return runCLI([]string{"help"})
	})
	if code != 0 {
		t.Fatalf("help code = %d", code)
	}
	for _, cmd := range []string{"serve", "index", "search", "query", "watch", "config check", "config lock"} {
		if !strings.Contains(out, cmd) {
			t.Fatalf("usage missing %q", cmd)
		}
	}
}

func TestCommandHelpFlagIsNotAFailure(t *testing.T) {
	code, _, errOut := captureOutputWithExitCode(t, "", func() int {
		return runCLI([]string{"query", "--help"})
	})
	if code != 0 || !strings.Contains(errOut, "--follow") {
		t.Fatalf("code = %d, stderr = %q", code, errOut)
	}
}

func TestRunConfigCheckAndLock(t *testing.T) {
	path := writeTestConfig(t)

	code, out, errOut := captureOutputWithExitCode(t, "", func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	if code != 0 {
		t.Fatalf("config check code = %d, stderr: %s", code, errOut)
	}
	sum, err := config.ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.Contains(out, sum) || !strings.Contains(out, "1 file(s) match 1 pattern(s)") {
		t.Fatalf("unexpected check output:\n%s", out)
	}

	code, out, errOut = captureOutputWithExitCode(t, "", func() int {
		return runCLI([]string{"config", "lock", "--config", path})
	})
	if code != 0 || !strings.Contains(out, sum) {
		t.Fatalf("config lock code = %d, stdout: %s, stderr: %s", code, out, errOut)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	_, _ = f.WriteString("# edited\n")
	_ = f.Close()

	code, _, errOut = captureOutputWithExitCode(t, "", func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	if code != 1 || !strings.Contains(errOut, "hash mismatch") {
		t.Fatalf("expected hash mismatch, code = %d, stderr: %s", code, errOut)
	}
}

func TestRunConfigNounUnknownAction(t *testing.T) {
	code, _, errOut := captureOutputWithExitCode(t, "", func() int {
		return runConfigNoun([]string{"show"})
	})
	if code != 1 || !strings.Contains(errOut, "Unknown config action: show") {
		t.Fatalf("code = %d, stderr = %q", code, errOut)
	}
}

func TestIndexThenLocalQuery(t *testing.T) {
	path := writeTestConfig(t)

	code, out, errOut := captureOutputWithExitCode(t, "", func() int {
		return runIndex([]string{"--config", path})
	})
	if code != 0 {
		t.Fatalf("index code = %d, stderr: %s", code, errOut)
	}
	if !strings.Contains(out, "warehouse") || !strings.Contains(out, "ADDED") {
		t.Fatalf("unexpected index output:\n%s", out)
	}

	code, out, errOut = captureOutputWithExitCode(t, "", func() int {
		return runQuery([]string{"--config", path, "--local", "--json", "customer"})
	})
	if code != 0 {
		t.Fatalf("query code = %d, stderr: %s", code, errOut)
	}
	var res catalog.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if res.Query != "customer" || res.Total != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}

	code, out, _ = captureOutputWithExitCode(t, "", func() int {
		return runQuery([]string{"--config", path, "--local", "pii"})
	})
	if code != 0 || !strings.Contains(out, "customers.email") || !strings.Contains(out, "1 of 1 entries") {
		t.Fatalf("code = %d, output:\n%s", code, out)
	}
}

func TestIndexExplicitFiles(t *testing.T) {
	path := writeTestConfig(t)
	extra := filepath.Join(t.TempDir(), "billing.yaml")
	if err := os.WriteFile(extra, []byte("source: billing\ntables:\n  - name: invoices\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	code, out, errOut := captureOutputWithExitCode(t, "", func() int {
		return runIndex([]string{"--config", path, extra})
	})
	if code != 0 {
		t.Fatalf("index code = %d, stderr: %s", code, errOut)
	}
	if !strings.Contains(out, "billing") || strings.Contains(out, "warehouse") {
		t.Fatalf("unexpected index output:\n%s", out)
	}
}

func TestIndexProfileFolder(t *testing.T) {
	path := writeTestConfig(t)
	dir := filepath.Join(t.TempDir(), "exports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "patients.csv"), []byte("patient_id;admitted;ward\n1;2024-01-02;north\n2;2024-02-03;\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.csv"), nil, 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	code, out, errOut := captureOutputWithExitCode(t, "", func() int {
		return runIndex([]string{"--config", path, "--profile", dir, "--separator", ";", "--source", "hospital"})
	})
	if code != 0 {
		t.Fatalf("index code = %d, stderr: %s", code, errOut)
	}
	if !strings.Contains(out, "hospital") || !strings.Contains(errOut, "broken.csv") {
		t.Fatalf("stdout:\n%s\nstderr:\n%s", out, errOut)
	}

	code, out, errOut = captureOutputWithExitCode(t, "", func() int {
		return runQuery([]string{"--config", path, "--local", "--json", "admitted"})
	})
	if code != 0 {
		t.Fatalf("query code = %d, stderr: %s", code, errOut)
	}
	var res catalog.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if res.Total != 1 || res.Hits[0].Source != "hospital" || res.Hits[0].Table != "patients" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := strings.Join(res.Hits[0].Keywords, ","); !strings.Contains(got, "date") {
		t.Fatalf("expected a date keyword, got %q", got)
	}
}

func TestIndexProfileFlagValidation(t *testing.T) {
	path := writeTestConfig(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"both modes", []string{"--profile", "a", "--profile-db", "b"}, "mutually exclusive"},
		{"with seed files", []string{"--profile", "a", "extra.yaml"}, "cannot be combined"},
		{"long separator", []string{"--profile", "a", "--separator", "::"}, "Invalid --separator"},
		{"missing folder", []string{"--profile", filepath.Join(t.TempDir(), "nope")}, "Import failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := captureOutputWithExitCode(t, "", func() int {
				return runIndex(append([]string{"--config", path}, tt.args...))
			})
			if code != 1 || !strings.Contains(errOut, tt.want) {
				t.Fatalf("code = %d, stderr: %s", code, errOut)
			}
		})
	}
}

func TestParseSeparator(t *testing.T) {
	for in, want := range map[string]rune{",": ',', ";": ';', "tab": '\t', `\t`: '\t', "|": '|'} {
		got, err := parseSeparator(in)
		if err != nil || got != want {
			t.Errorf("parseSeparator(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "ab", `"`, "\n"} {
		if _, err := parseSeparator(in); err == nil {
			t.Errorf("parseSeparator(%q) should fail", in)
		}
	}
}

func TestIndexRefusesWhileLocked(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	held, err := lock.AcquirePIDLock(cfg.Catalog.LockPath)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	defer held.Release()

	code, _, errOut := captureOutputWithExitCode(t, "", func() int {
		return runIndex([]string{"--config", path})
	})
	if code != 1 || !strings.Contains(errOut, "catalog is in use") {
		t.Fatalf("code = %d, stderr = %q", code, errOut)
	}
}

func TestQueryFollowAnswersOnlySettledText(t *testing.T) {
	path := writeTestConfig(t)
	if code, _, errOut := captureOutputWithExitCode(t, "", func() int {
		return runIndex([]string{"--config", path})
	}); code != 0 {
		t.Fatalf("index code = %d, stderr: %s", code, errOut)
	}

	code, out, errOut := captureOutputWithExitCode(t, "c\ncu\ncus\ncust\n", func() int {
		return runQuery([]string{"--config", path, "--local", "--follow", "--json"})
	})
	if code != 0 {
		t.Fatalf("query --follow code = %d, stderr: %s", code, errOut)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one settled result, got %d:\n%s", len(lines), out)
	}
	var res catalog.Result
	if err := json.Unmarshal([]byte(lines[0]), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Query != "cust" {
		t.Fatalf("query = %q, want %q", res.Query, "cust")
	}
}

func TestQueryFollowRejectsArguments(t *testing.T) {
	code, _, errOut := captureOutputWithExitCode(t, "", func() int {
		return runQuery([]string{"--follow", "text"})
	})
	if code != 1 || !strings.Contains(errOut, "takes no arguments") {
		t.Fatalf("code = %d, stderr = %q", code, errOut)
	}
}

func TestResultPrinterReportsErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &resultPrinter{out: &out, errOut: &errOut}
	p.OnError("orders", io.ErrUnexpectedEOF)
	if !p.failed.Load() || !strings.Contains(errOut.String(), `query "orders" failed`) {
		t.Fatalf("failed = %v, stderr = %q", p.failed.Load(), errOut.String())
	}
}

func TestPublishChange(t *testing.T) {
	hub := events.NewHub(8)
	publishChange(hub, catalog.ImportReport{Source: "warehouse", Origin: "/seeds/w.yaml", Added: 1})
	publishChange(hub, catalog.ImportReport{Origin: "/seeds/w.yaml", Removed: 4})

	got := hub.SnapshotSince(0)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != events.TypeCatalogImported || got[1].Type != events.TypeCatalogRemoved {
		t.Fatalf("unexpected event types: %s, %s", got[0].Type, got[1].Type)
	}
}
