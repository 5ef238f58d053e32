package profiler

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestDisabledProfilerDoesNothing(t *testing.T) {
	p := New(Config{CPUProfile: filepath.Join(t.TempDir(), "cpu.out")}, zaptest.NewLogger(t))

	if err := p.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(p.config.CPUProfile); !os.IsNotExist(err) {
		t.Fatal("disabled profiler must not create files")
	}
}

func TestProfilesAreWritten(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Enable:     true,
		CPUProfile: filepath.Join(dir, "cpu.out"),
		MemProfile: filepath.Join(dir, "heap.out"),
	}
	p := New(cfg, zaptest.NewLogger(t))

	if err := p.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}

	for _, path := range []string{cfg.CPUProfile, cfg.MemProfile} {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Fatalf("profile %s not written: %v", path, err)
		}
	}
}

func TestPprofEndpoint(t *testing.T) {
	p := New(Config{Enable: true, HTTPPort: freePort(t)}, zaptest.NewLogger(t))
	if err := p.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer p.Stop()

	resp, err := http.Get("http://" + p.Addr() + "/debug/pprof/")
	if err != nil {
		t.Fatalf("pprof index unreachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestCPUProfileFailureIsReported(t *testing.T) {
	p := New(Config{Enable: true, CPUProfile: filepath.Join(t.TempDir(), "missing", "cpu.out")}, zaptest.NewLogger(t))

	if err := p.Start(); err == nil {
		t.Fatal("expected error for unwritable profile path")
	}
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
