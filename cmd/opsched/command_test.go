package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vnykmshr/opsched/internal/testutil"
)

func writeWorkload(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workload.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidateCmd(t *testing.T) {
	path := writeWorkload(t, sampleWorkload)

	out, _, err := execute(t, "validate", "--workload", path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, "nightly: 3 processes (1 critical, 1 normal, 1 low) OK\n")
}

func TestValidateCmd_RequiresWorkload(t *testing.T) {
	_, _, err := execute(t, "validate")
	testutil.AssertError(t, err)
}

func TestRunCmd_DryRun(t *testing.T) {
	path := writeWorkload(t, `
name: dry
max_age: 2
tick: 1ms
processes:
  - command: first
  - command: urgent
    critical: true
    exit_code: 3
  - command: background
    low: true
`)

	out, _, err := execute(t, "run", "--workload", path, "--dry-run", "--log-level", "error")
	testutil.AssertNoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	testutil.AssertEqual(t, strings.Fields(lines[0])[0], "PID")
	testutil.AssertSliceEqual(t, strings.Fields(lines[1]), []string{"1", "normal", "0", "first"})
	testutil.AssertSliceEqual(t, strings.Fields(lines[2]), []string{"2", "critical", "3", "urgent"})
	testutil.AssertSliceEqual(t, strings.Fields(lines[3]), []string{"3", "low", "0", "background"})
	if !strings.Contains(out, "submitted=3 completed=3 failed=0 killed=0 reaped=3") {
		t.Errorf("unexpected summary:\n%s", out)
	}
}

func TestRunCmd_FlagOverrides(t *testing.T) {
	path := writeWorkload(t, "max_age: -1\nprocesses:\n  - command: x\n")

	// the file itself is rejected before flags apply
	_, _, err := execute(t, "run", "--workload", path, "--max-age", "2", "--dry-run")
	testutil.AssertError(t, err)

	path = writeWorkload(t, "tick: 1ms\nprocesses:\n  - command: x\n")
	_, _, err = execute(t, "run", "--workload", path, "--cron", "not a cron", "--dry-run")
	testutil.AssertError(t, err)
}

func TestRunCmd_BadLogFormat(t *testing.T) {
	path := writeWorkload(t, "processes:\n  - command: x\n")
	_, _, err := execute(t, "run", "--workload", path, "--log-format", "xml", "--dry-run")
	testutil.AssertError(t, err)
}
