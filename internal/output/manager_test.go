package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestManagerSummary(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	ok := m.Register("https://example.com/a.bin")
	failed := m.Register("https://example.com/b.bin")

	m.SetMessage(ok, "Downloading a.bin")
	m.ReportProgress(ok, 50, 100)
	m.Complete(ok, "")
	m.ReportError(failed, errors.New("connection reset"))

	if m.tasks[ok].Status != "success" || m.tasks[failed].Status != "error" {
		t.Fatalf("unexpected statuses %q, %q", m.tasks[ok].Status, m.tasks[failed].Status)
	}

	m.StartDisplay()
	m.StopDisplay()
	m.StopDisplay()

	out := buf.String()
	for _, want := range []string{
		"Completed https://example.com/a.bin",
		"Completed 1 of 2",
		"Failed 1 of 2",
		"Errors:",
		"connection reset",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestManagerStatusIndicators(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	pending := m.Register("a")
	active := m.Register("b")
	m.SetMessage(active, "Downloading b")
	m.SetStatus(active, "active")
	m.ReportProgress(active, 1, 4)
	m.SetStatus(42, "active") // unknown ids are ignored

	m.updateDisplay()
	out := buf.String()
	for _, want := range []string{
		StyleSymbols["pending"] + " 0s Waiting...",
		StyleSymbols["active"] + " 0s Downloading b",
		"25.0%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("display missing %q:\n%s", want, out)
		}
	}
	if m.tasks[pending].Status != "pending" {
		t.Errorf("untouched task should stay pending, got %q", m.tasks[pending].Status)
	}
}

func TestPrintProgressBar(t *testing.T) {
	tests := []struct {
		current, total int64
		want           string
	}{
		{0, 100, "0.0%"},
		{50, 100, "50.0%"},
		{100, 100, "100.0%"},
		{150, 100, "100.0%"},
		{-5, 100, "0.0%"},
		{10, 0, "100.0%"},
	}
	for _, tt := range tests {
		if got := PrintProgressBar(tt.current, tt.total, 10); !strings.Contains(got, tt.want) {
			t.Errorf("PrintProgressBar(%d, %d) = %q, want %q", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestProgressLine(t *testing.T) {
	line := ProgressLine(20_000_000, 100_000_000, 2*time.Second)
	for _, want := range []string{"20.0%", "20 MB / 100 MB", "10 MB/s"} {
		if !strings.Contains(line, want) {
			t.Errorf("progress line %q missing %q", line, want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
