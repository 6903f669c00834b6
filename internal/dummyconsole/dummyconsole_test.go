package dummyconsole

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunEchoesUntilStop(t *testing.T) {
	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader("first\r\nsecond\nstop\nnever\n")

	code := Run(nil, stdin, &stdout, &stderr, func() { t.Fatal("should not block after stop") })
	if code != StopExitCode {
		t.Fatalf("exit code = %d, want %d", code, StopExitCode)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	want := append(Banner(nil), "first", "second", "stop")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %q, want %q", len(lines), lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if stderr.Len() != 0 {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunExplode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{ExplodeFlag}, strings.NewReader("stop\n"), &stdout, &stderr, func() {})
	if code != ExplodeCode {
		t.Fatalf("exit code = %d, want %d", code, ExplodeCode)
	}
	if !strings.Contains(stderr.String(), "Boom") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "Dummy logline") {
		t.Fatalf("banner missing from stdout %q", stdout.String())
	}
}

func TestRunBlocksOnEOF(t *testing.T) {
	var stdout, stderr bytes.Buffer
	blocked := false
	code := Run([]string{"a", "b"}, strings.NewReader(""), &stdout, &stderr, func() { blocked = true })
	if !blocked || code != 0 {
		t.Fatalf("blocked = %v, code = %d", blocked, code)
	}
	if !strings.HasPrefix(stdout.String(), "Args: a b\n") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}
