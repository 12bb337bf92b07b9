package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/scpgate/internal/verify"
)

func sampleReport() verify.Report {
	var rep verify.Report
	tag := uint8(2)
	rep.Findings = []verify.Finding{
		{Ts: time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC), File: "ANON000001.scp",
			Check: "patient-tags", Status: verify.PASS, Detail: "9 tags conform to policy"},
		{Ts: time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC), File: "ANON000001.scp",
			Check: "scan-numeric-ids", Status: verify.WARN, Tag: &tag, Offset: 81,
			Detail: "long digit run: \"123456789\""},
	}
	rep.Summary.Total = 2
	rep.Summary.Warnings = 1
	rep.Summary.Pass = true
	return rep
}

func TestReportJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	rep := sampleReport()
	if err := SaveReportJSON(rep, path); err != nil {
		t.Fatalf("SaveReportJSON: %v", err)
	}
	loaded, err := LoadReportJSON(path)
	if err != nil {
		t.Fatalf("LoadReportJSON: %v", err)
	}
	if loaded.Summary != rep.Summary {
		t.Fatalf("summary mismatch: %+v", loaded.Summary)
	}
	if len(loaded.Findings) != 2 || loaded.Findings[1].Check != "scan-numeric-ids" {
		t.Fatalf("findings mismatch: %+v", loaded.Findings)
	}
	if loaded.Findings[1].Tag == nil || *loaded.Findings[1].Tag != 2 {
		t.Fatalf("tag not preserved: %+v", loaded.Findings[1])
	}
}

func TestFileHashToQR(t *testing.T) {
	png, err := FileHashToQR("a3f1c2d4e5b60718293a4b5c6d7e8f90a3f1c2d4e5b60718293a4b5c6d7e8f90", 128)
	if err != nil {
		t.Fatalf("FileHashToQR: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("empty QR image")
	}
	// PNG signature.
	if png[0] != 0x89 || string(png[1:4]) != "PNG" {
		t.Fatalf("output is not a PNG: % x", png[:4])
	}
}

func TestFileHashToQRRejectsEmpty(t *testing.T) {
	if _, err := FileHashToQR("   ", 64); err == nil {
		t.Fatal("expected error for empty hash")
	}
}

func TestSaveReportPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	hash := "a3f1c2d4e5b60718293a4b5c6d7e8f90a3f1c2d4e5b60718293a4b5c6d7e8f90"
	if err := SaveReportPDF(sampleReport(), hash, path); err != nil {
		t.Fatalf("SaveReportPDF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 || string(data[:4]) != "%PDF" {
		t.Fatalf("output is not a PDF (%d bytes)", len(data))
	}
}
