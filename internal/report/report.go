package report

import (
	"encoding/json"
	"os"

	"example.com/scpgate/internal/verify"
)

func SaveReportJSON(rep verify.Report, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadReportJSON(path string) (verify.Report, error) {
	var rep verify.Report
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
