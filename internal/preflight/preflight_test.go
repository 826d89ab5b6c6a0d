package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sketchreel/internal/config"
	"sketchreel/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRemote(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if result := CheckRemote(cfg); result.Passed {
		t.Fatal("expected dir backend without a root directory to fail")
	}
	if err := os.MkdirAll(cfg.Remote.DirRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if result := CheckRemote(cfg); !result.Passed {
		t.Fatalf("expected dir backend to pass, got %s", result.Detail)
	}

	cfg.Remote.Backend = config.BackendGDrive
	if result := CheckRemote(cfg); result.Passed || !strings.Contains(result.Detail, "gdrive auth") {
		t.Fatalf("expected missing token hint, got %+v", result)
	}

	cfg.Remote.Backend = config.BackendRclone
	cfg.Remote.Name = "gdrive"
	if result := CheckRemote(cfg); !result.Passed {
		t.Fatalf("expected rclone remote to pass, got %s", result.Detail)
	}
}

func TestCheckModelServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckModelServer(context.Background(), srv.URL+"/ping"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckModelServer(context.Background(), ""); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckModelServer_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if result := CheckModelServer(context.Background(), srv.URL); result.Passed {
		t.Fatal("expected failure for 500")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_TestConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Remote.DirRoot, 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Animator.Wrapper = []string{"xvfb-run-missing", "-a"}

	statuses := CheckSystemDeps(cfg)
	byName := map[string]bool{}
	for _, s := range statuses {
		byName[s.Name] = s.Available
	}
	if !byName["Animator"] {
		t.Fatal("expected stubbed animator to be found")
	}
	if byName["Animator wrapper"] {
		t.Fatal("expected missing wrapper to be reported")
	}
	if _, ok := byName["rclone"]; ok {
		t.Fatal("rclone should only be required for the rclone backend")
	}
	if _, ok := byName["FFprobe"]; !ok {
		t.Fatal("expected ffprobe status")
	}
}
