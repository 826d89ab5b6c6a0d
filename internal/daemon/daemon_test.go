package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"sketchreel/internal/daemon"
	"sketchreel/internal/pipeline"
	"sketchreel/internal/testsupport"
)

// blockingLoop runs until its context is cancelled.
type blockingLoop struct {
	started chan struct{}
}

func newBlockingLoop() *blockingLoop {
	return &blockingLoop{started: make(chan struct{})}
}

func (l *blockingLoop) Run(ctx context.Context) error {
	close(l.started)
	<-ctx.Done()
	return nil
}

func (l *blockingLoop) LastCycle() (pipeline.CycleReport, bool) {
	return pipeline.CycleReport{ID: "c-1"}, true
}

func (l *blockingLoop) Cycles() int    { return 1 }
func (l *blockingLoop) Remote() string { return "fake remote" }

func startDaemon(t *testing.T, d *daemon.Daemon, loop *blockingLoop) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()
	select {
	case <-loop.started:
	case err := <-done:
		cancel()
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not start")
	}
	return cancel, done
}

func TestDaemonRunStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	loop := newBlockingLoop()
	d, err := daemon.New(cfg, loop, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	cancel, done := startDaemon(t, d, loop)
	status := d.Status()
	if !status.Running || status.Cycles != 1 || status.LastCycle == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.APIAddress != "" {
		t.Fatalf("expected API disabled, got %q", status.APIAddress)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if d.Running() {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	loop := newBlockingLoop()
	first, err := daemon.New(cfg, loop, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	cancel, done := startDaemon(t, first, loop)
	defer func() {
		cancel()
		<-done
	}()

	second, err := daemon.New(cfg, newBlockingLoop(), nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	hookCalls := 0
	second.OnLocked(func() (func(), error) {
		hookCalls++
		return nil, nil
	})
	if err := second.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected lock conflict, got %v", err)
	}
	if hookCalls != 0 {
		t.Fatalf("locked hook ran for rejected instance")
	}
}

func TestLockedHooksRunUnderLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	loop := newBlockingLoop()
	d, err := daemon.New(cfg, loop, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	var calls, releases int
	d.OnLocked(func() (func(), error) {
		calls++
		return func() { releases++ }, nil
	})

	cancel, done := startDaemon(t, d, loop)
	if calls != 1 {
		t.Fatalf("expected hook to run once before the loop, got %d", calls)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if releases != 1 {
		t.Fatalf("expected release on stop, got %d", releases)
	}
}

func TestLockedHookErrorAbortsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	loop := newBlockingLoop()
	d, err := daemon.New(cfg, loop, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	boom := errors.New("pid file unwritable")
	d.OnLocked(func() (func(), error) { return nil, boom })

	if err := d.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	select {
	case <-loop.started:
		t.Fatal("watch loop started despite hook failure")
	default:
	}
}

func TestDaemonServesStatusAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	loop := newBlockingLoop()
	d, err := daemon.New(cfg, loop, store, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	cancel, done := startDaemon(t, d, loop)
	defer func() {
		cancel()
		<-done
	}()

	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected API address")
	}
	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Remote    string `json:"remote"`
		LastCycle struct {
			ID string `json:"id"`
		} `json:"lastCycle"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Remote != "fake remote" || body.LastCycle.ID != "c-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if d.Status().LedgerPath != store.Path() {
		t.Fatalf("expected ledger path in status")
	}
}

func TestNewRequiresLoop(t *testing.T) {
	if _, err := daemon.New(testsupport.NewConfig(t), nil, nil, nil); err == nil {
		t.Fatal("expected error without loop")
	}
}
