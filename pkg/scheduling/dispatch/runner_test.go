package dispatch

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/vnykmshr/opsched/internal/testutil"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestExecRunner_ExitCodes(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name    string
		command string
		want    int
	}{
		{name: "success", command: "true", want: 0},
		{name: "failure", command: "false", want: 1},
		{name: "explicit", command: "exit 42", want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := opsched.NewProcess(tt.command, 1, false, false)
			testutil.AssertNoError(t, err)

			code, err := ExecRunner{}.Run(context.Background(), p)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, code, tt.want)
		})
	}
}

func TestExecRunner_Output(t *testing.T) {
	requireShell(t)

	var out bytes.Buffer
	p, _ := opsched.NewProcess("echo $OPSCHED_GREETING", 1, false, false)
	code, err := ExecRunner{Stdout: &out, Env: []string{"OPSCHED_GREETING=hello"}}.Run(context.Background(), p)

	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, code, 0)
	testutil.AssertEqual(t, out.String(), "hello\n")
}

func TestExecRunner_ContextTimeout(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p, _ := opsched.NewProcess("sleep 5", 1, false, false)
	start := time.Now()
	code, err := ExecRunner{}.Run(ctx, p)

	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)
	testutil.AssertEqual(t, code, -1)
	if time.Since(start) > 3*time.Second {
		t.Error("runner did not stop on context timeout")
	}
}

func TestExecRunner_MissingShell(t *testing.T) {
	p, _ := opsched.NewProcess("true", 1, false, false)
	code, err := ExecRunner{Shell: "/nonexistent/shell"}.Run(context.Background(), p)

	testutil.AssertError(t, err)
	testutil.AssertEqual(t, code, -1)
}

func TestSimulated(t *testing.T) {
	p, _ := opsched.NewProcess("anything", 1, false, false)

	code, err := Simulated(9).Run(context.Background(), p)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, code, 9)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Simulated(9).Run(ctx, p)
	testutil.AssertErrorIs(t, err, context.Canceled)
}
