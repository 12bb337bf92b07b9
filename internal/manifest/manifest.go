package manifest

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"example.com/scpgate/internal/common"
	"example.com/scpgate/internal/scp"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

// Manifest inventories the outputs of one anonymization run. Mappings link
// each original patient identifier to its anonymous replacement; a manifest
// carrying them must be stored with the same care as the source files.
type Manifest struct {
	CreatedAt time.Time     `json:"createdAt"`
	ShaAlgo   string        `json:"shaAlgo"`
	Items     []Item        `json:"items"`
	Mappings  []scp.Mapping `json:"mappings,omitempty"`
}

func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		typ := "other"
		switch {
		case hasExt(p, ".scp"):
			typ = "scp"
		case hasExt(p, ".json", ".ndjson", ".jsonl"):
			typ = "json"
		case hasExt(p, ".pdf"):
			typ = "pdf"
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: typ})
	}
	return m, nil
}

func hasExt(path string, exts ...string) bool {
	lower := strings.ToLower(path)
	for _, e := range exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
