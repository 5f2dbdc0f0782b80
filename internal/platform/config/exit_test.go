package config

import (
	"bytes"
	"testing"
)

func TestExitfWritesMessageAndExitsWithCode1(t *testing.T) {
	var code int
	original := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = original })

	var buf bytes.Buffer
	exitTo(&buf, "fatal: %s", "database locked")

	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if got := buf.String(); got != "fatal: database locked\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
