package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/scpgate/internal/verify"
)

// SaveReportPDF renders the verification report into a PDF document. When
// fileHash is non-empty a QR stamp of the hash is placed on the first page so
// the printout can be matched to the exact output bytes.
func SaveReportPDF(rep verify.Report, fileHash, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Anonymization Verification Report", false)
	pdf.SetAuthor("scpctl", false)
	pdf.SetCreator("scpctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Anonymization Verification Report")
	if fileHash != "" {
		addHashStamp(pdf, fileHash)
	}
	addSummarySection(pdf, rep)
	addFindingsSection(pdf, rep.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addHashStamp(pdf *gofpdf.Fpdf, hash string) {
	png, err := FileHashToQR(hash, 256)
	if err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("file-hash-qr", opts, bytes.NewReader(png))
	pageWidth, _ := pdf.GetPageSize()
	pdf.ImageOptions("file-hash-qr", pageWidth-45, 15, 30, 30, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	pdf.MultiCell(0, 4, "Output SHA-256: "+hash, "", "L", false)
	pdf.Ln(2)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep verify.Report) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Total Findings", value: strconv.Itoa(rep.Summary.Total)},
		{label: "Failures", value: strconv.Itoa(rep.Summary.Failures)},
		{label: "Warnings", value: strconv.Itoa(rep.Summary.Warnings)},
		{label: "Overall", value: passLabel(rep.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, findings []verify.Finding) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}

	for i, f := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, f.Check, statusLabel(f.Status))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if detail := strings.TrimSpace(f.Detail); detail != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, detail, "", "L", false)
		}

		meta := findingMetadata(f)
		if meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}

		pdf.Ln(2)
	}
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func statusLabel(status verify.Status) string {
	if s := strings.TrimSpace(string(status)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func findingMetadata(f verify.Finding) string {
	parts := make([]string, 0, 4)
	if !f.Ts.IsZero() {
		parts = append(parts, f.Ts.Format(time.RFC3339))
	}
	if f.File != "" {
		parts = append(parts, f.File)
	}
	if f.Tag != nil {
		parts = append(parts, fmt.Sprintf("Tag %d", *f.Tag))
	}
	if f.Offset != 0 {
		parts = append(parts, fmt.Sprintf("Offset %d", f.Offset))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " - ")
}
