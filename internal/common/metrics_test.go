package common

import (
	"bytes"
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(1000)
	m.Start()
	m.AddFile(400)
	m.AddFile(100)
	m.IncFailure()
	m.Stop()

	snap := m.Snapshot()
	if snap.Files != 2 || snap.Bytes != 500 || snap.Failures != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Completion() != 0.5 {
		t.Fatalf("completion %f, want 0.5", snap.Completion())
	}
	if snap.Duration <= 0 {
		t.Fatalf("duration %v not positive", snap.Duration)
	}
}

func TestMetricsNegativeInputsClamped(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(-5)
	m.AddFile(-10)
	snap := m.Snapshot()
	if snap.Bytes != 0 || snap.TotalBytes != 0 {
		t.Fatalf("negative inputs not clamped: %+v", snap)
	}
	if snap.Completion() != 0 {
		t.Fatalf("completion %f, want 0 without a total", snap.Completion())
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{3 * 1024 * 1024, "3.00 MiB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProgressPrinterStops(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(100)
	m.Start()
	m.AddFile(50)

	var buf bytes.Buffer
	stop := StartProgressPrinter(&buf, m, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	stop()

	if !bytes.Contains(buf.Bytes(), []byte("Progress:")) {
		t.Fatalf("no progress output captured: %q", buf.String())
	}
}
