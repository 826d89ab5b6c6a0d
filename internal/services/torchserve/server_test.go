package torchserve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"sketchreel/internal/services"
	"sketchreel/internal/testsupport"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.ModelServer.ModelStore, 0o755); err != nil {
		t.Fatalf("mkdir model store: %v", err)
	}
	s := FromConfig(cfg, nil)
	s.PingInterval = 10 * time.Millisecond
	return s
}

func TestStartArgs(t *testing.T) {
	calls := setHelperCommand(t, "success", "")
	s := newTestServer(t)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := []string{"torchserve", "--start", "--ncs", "--model-store", s.ModelStore, "--models", "drawn_humanoid_detector=drawn_humanoid_detector.mar"}
	if len(*calls) != 1 || !reflect.DeepEqual((*calls)[0], want) {
		t.Fatalf("unexpected calls: %v", *calls)
	}
}

func TestStartRequiresModelStore(t *testing.T) {
	setHelperCommand(t, "success", "")
	s := newTestServer(t)
	s.ModelStore = filepath.Join(t.TempDir(), "missing")

	if err := s.Start(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEnsureModelSkipsWhenPresent(t *testing.T) {
	calls := setHelperCommand(t, "success", "")
	s := newTestServer(t)
	testsupport.WriteFile(t, s.ModelPath(), 8)

	downloaded, err := s.EnsureModel(context.Background())
	if err != nil || downloaded {
		t.Fatalf("expected no download, got %v %v", downloaded, err)
	}
	if len(*calls) != 0 {
		t.Fatalf("expected no subprocess, got %v", *calls)
	}
}

func TestEnsureModelDownloads(t *testing.T) {
	s := newTestServer(t)
	calls := setHelperCommand(t, "download", s.ModelPath())

	downloaded, err := s.EnsureModel(context.Background())
	if err != nil || !downloaded {
		t.Fatalf("expected download, got %v %v", downloaded, err)
	}
	if len(*calls) != 1 || (*calls)[0][0] != "python" {
		t.Fatalf("unexpected calls: %v", *calls)
	}
}

func TestEnsureModelStillMissing(t *testing.T) {
	setHelperCommand(t, "success", "")
	s := newTestServer(t)

	if _, err := s.EnsureModel(context.Background()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWaitReadyPollsUntilOK(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status": "Healthy"}`)
	}))
	t.Cleanup(srv.Close)

	s := newTestServer(t)
	s.PingURL = srv.URL + "/ping"
	s.PingTimeout = 5 * time.Second
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected three pings, got %d", hits.Load())
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	s := newTestServer(t)
	s.PingURL = srv.URL + "/ping"
	s.PingTimeout = 50 * time.Millisecond
	if err := s.WaitReady(context.Background()); !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestStartFailureIsExternalTool(t *testing.T) {
	setHelperCommand(t, "failure", "")
	s := newTestServer(t)

	err := s.Start(context.Background())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func setHelperCommand(t *testing.T, mode, target string) *[][]string {
	t.Helper()
	var calls [][]string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			"TORCHSERVE_HELPER_MODE="+mode,
			"TORCHSERVE_HELPER_TARGET="+target,
		)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &calls
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("TORCHSERVE_HELPER_MODE") {
	case "download":
		if err := os.WriteFile(os.Getenv("TORCHSERVE_HELPER_TARGET"), []byte("mar"), 0o644); err != nil {
			os.Exit(3)
		}
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "java not found")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
