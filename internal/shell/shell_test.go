package shell

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestExecRunnerReturnsTrimmedStdout(t *testing.T) {
	r := NewExecRunner(5*time.Second, zaptest.NewLogger(t))

	if got := r.Run(context.Background(), "sh", "-c", "printf '  hello\\n\\n'"); got != "hello" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestExecRunnerKeepsOutputOnNonZeroExit(t *testing.T) {
	r := NewExecRunner(5*time.Second, nil)

	if got := r.Run(context.Background(), "sh", "-c", "echo inactive; exit 3"); got != "inactive" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestExecRunnerMissingCommand(t *testing.T) {
	r := NewExecRunner(5*time.Second, nil)

	if got := r.Run(context.Background(), "srvmon-no-such-command"); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if r.Available("srvmon-no-such-command") {
		t.Fatal("missing command reported as available")
	}
	if !r.Available("sh") {
		t.Fatal("sh reported as unavailable")
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(100*time.Millisecond, nil)

	start := time.Now()
	if got := r.Run(context.Background(), "sh", "-c", "echo early; sleep 5"); got != "" {
		t.Fatalf("expected empty output after timeout, got %q", got)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
}

func TestExecRunnerTimeoutKillsDescendants(t *testing.T) {
	r := NewExecRunner(200*time.Millisecond, nil)

	for _, script := range []string{"sleep 4; true", "sleep 4 & wait"} {
		start := time.Now()
		if got := r.Run(context.Background(), "sh", "-c", script); got != "" {
			t.Fatalf("%q: expected empty output after timeout, got %q", script, got)
		}
		if elapsed := time.Since(start); elapsed > 3*time.Second {
			t.Fatalf("%q: descendants kept the command alive for %v", script, elapsed)
		}
	}
}
