package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, context.Background(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	want := "zkfocil " + version + " (commit " + commit + ")"
	if !strings.Contains(out, want) {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestLotteryAllWin(t *testing.T) {
	// 64 validators with a target of 64 gives modulus 1.
	out, err := execute(t, context.Background(), "lottery", "--validators", "64", "--slot", "7", "--seed", "cli-test", "--verbosity", "0")
	if err != nil {
		t.Fatalf("lottery: %v", err)
	}
	if !strings.Contains(out, "Slot 7: 64 of 64 validators selected") {
		t.Fatalf("output = %q", out)
	}
	if got := strings.Count(out, "\n  #"); got != 64 {
		t.Fatalf("winner lines = %d, want 64", got)
	}
}

func TestLotteryTarget(t *testing.T) {
	out, err := execute(t, context.Background(), "lottery", "--validators", "64", "--target", "8", "--seed", "cli-test", "--verbosity", "0")
	if err != nil {
		t.Fatalf("lottery: %v", err)
	}
	if !strings.Contains(out, "of 64 validators selected") || !strings.Contains(out, "modulus 8") {
		t.Fatalf("output = %q", out)
	}
}

func TestSimulate(t *testing.T) {
	out, err := execute(t, context.Background(), "simulate",
		"--attempts", "5", "--no-progress", "--show-log", "3",
		"--seed", "cli-test", "--verbosity", "0")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for _, want := range []string{"Attempts:       5", "Validators:     50", "(verified)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSimulateErrors(t *testing.T) {
	if _, err := execute(t, context.Background(), "simulate", "--attempts", "0", "--verbosity", "0"); err == nil {
		t.Fatal("expected error for zero attempts")
	}
	if _, err := execute(t, context.Background(), "simulate", "--policy", "dice", "--verbosity", "0"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
	if _, err := execute(t, context.Background(), "simulate", "--identities", "1", "--verbosity", "0"); err == nil {
		t.Fatal("expected error for a single identity")
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := execute(t, ctx, "run", "--api=false", "--interval", "5", "--seed", "cli-test", "--verbosity", "0")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunExitCode(t *testing.T) {
	if code := run([]string{"version"}); code != 0 {
		t.Fatalf("run(version) = %d, want 0", code)
	}
	if code := run([]string{"no-such-command"}); code != 1 {
		t.Fatalf("run(no-such-command) = %d, want 1", code)
	}
}
