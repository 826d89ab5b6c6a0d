package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sketchreel/internal/ledger"
	"sketchreel/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Backend: dir")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestOnceThenStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	remoteIn := testsupport.RemoteInputDir(env.cfg)
	testsupport.WritePNG(t, filepath.Join(remoteIn, "cat.png"))
	testsupport.WritePNG(t, filepath.Join(remoteIn, "broken.png"))

	out, _, err := runCLI(t, env.configPath, "once")
	if err != nil {
		t.Fatalf("once: %v", err)
	}
	requireContains(t, out, "2 input(s)")
	requireContains(t, out, "succeeded:     cat.png")
	requireContains(t, out, "failed:        broken.png")

	if _, err := os.Stat(filepath.Join(testsupport.RemoteOutputDir(env.cfg), "cat.gif")); err != nil {
		t.Fatalf("expected pushed clip: %v", err)
	}

	out, _, err = runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon running: no")
	requireContains(t, out, "Inputs: 2  Attempts: 2")
	requireContains(t, out, "cat.png")
	requireContains(t, out, "exit_status")
}

func TestProcessSingleDrawing(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(testsupport.BaseDir(env.cfg), "loose", "owl.png")
	testsupport.WritePNG(t, input)

	out, _, err := runCLI(t, env.configPath, "process", input)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "Animated owl.png")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "owl.gif")); err != nil {
		t.Fatalf("expected artifact: %v", err)
	}

	broken := filepath.Join(testsupport.BaseDir(env.cfg), "loose", "broken.png")
	testsupport.WritePNG(t, broken)
	if _, _, err := runCLI(t, env.configPath, "process", broken); err == nil {
		t.Fatal("expected failure for broken drawing")
	}
	if _, _, err := runCLI(t, env.configPath, "process", filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestRequeueMovesQuarantinedInputBack(t *testing.T) {
	env := setupCLITestEnv(t)
	quarantined := filepath.Join(env.cfg.Paths.FailedDir, "frog-1.png")
	testsupport.WritePNG(t, quarantined)

	store := testsupport.MustOpenLedger(t, env.cfg)
	now := time.Now()
	testsupport.RecordAttempt(t, store, "frog.png", ledger.OutcomeFailed, now.Add(-time.Minute))
	if _, err := store.Record(context.Background(), ledger.Attempt{
		CycleID:      "c-9",
		InputName:    "frog.png",
		Outcome:      ledger.OutcomeDeadLettered,
		ArtifactPath: quarantined,
		StartedAt:    now,
		FinishedAt:   now,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "requeue", "frog.png")
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	requireContains(t, out, "Forgot 2 attempt(s) for frog.png")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.InputDir, "frog.png")); err != nil {
		t.Fatalf("expected input restored: %v", err)
	}
	if _, err := os.Stat(quarantined); !os.IsNotExist(err) {
		t.Fatalf("expected quarantined copy to move, stat err=%v", err)
	}

	out, _, err = runCLI(t, env.configPath, "requeue", "frog.png")
	if err != nil {
		t.Fatalf("second requeue: %v", err)
	}
	requireContains(t, out, "No quarantined copy found")
}

func TestLedgerPrune(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenLedger(t, env.cfg)
	testsupport.RecordAttempt(t, store, "old.png", ledger.OutcomeSucceeded, time.Now().Add(-200*24*time.Hour))
	testsupport.RecordAttempt(t, store, "new.png", ledger.OutcomeSucceeded, time.Now())

	out, _, err := runCLI(t, env.configPath, "ledger", "prune", "--older-than", "720h")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	requireContains(t, out, "Pruned 1 attempt(s)")
}

func TestCheckReportsMissingRemote(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env.configPath, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "== Preflight ==")
	requireContains(t, out, "Animator:")

	if err := os.RemoveAll(env.cfg.Remote.DirRoot); err != nil {
		t.Fatalf("remove remote: %v", err)
	}
	out, _, err = runCLI(t, env.configPath, "check")
	if err == nil {
		t.Fatalf("expected check failure, output:\n%s", out)
	}
	requireContains(t, err.Error(), "Remote")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env.configPath, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}

func TestOutcomeLabel(t *testing.T) {
	cases := map[string]string{
		"succeeded":     "Succeeded",
		"dead_lettered": "Dead Lettered",
		"":              "",
	}
	for in, want := range cases {
		if got := outcomeLabel(in); got != want {
			t.Fatalf("outcomeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogsPrintsTailWithFilter(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.cfg.Paths.LogDir, "sketchreel.log")
	content := "cycle started\njob failed input=a.png\njob succeeded input=b.png\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "logs", "-n", "2", "--grep", "job")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "job failed input=a.png\njob succeeded input=b.png\n" {
		t.Fatalf("unexpected output %q", out)
	}
}
