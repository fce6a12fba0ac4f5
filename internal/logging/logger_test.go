package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel(INFO)
	})
	return &buf
}

func TestLevelGate(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Debug("quiet")
	Info("quiet")
	Warn("loud %d", 1)
	Error("loud %d", 2)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("sub-gate entries leaked:\n%s", out)
	}
	for _, want := range []string{"[WARN]", "loud 1", "[ERROR]", "loud 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatting(t *testing.T) {
	buf := capture(t)
	SetLevel(DEBUG)

	Debug("plain")
	Info("with %s and %d", "args", 7)

	out := buf.String()
	if !strings.Contains(out, "plain") || !strings.Contains(out, "with args and 7") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if lines := strings.Count(out, "\n"); lines != 2 {
		t.Errorf("got %d lines, want 2", lines)
	}
}

func TestLevelString(t *testing.T) {
	if DEBUG.String() != "DEBUG" || ERROR.String() != "ERROR" {
		t.Error("level names wrong")
	}
	if Level(9).String() != "LEVEL(9)" {
		t.Errorf("unknown level = %q", Level(9).String())
	}
}
