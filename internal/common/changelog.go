package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ChangeEntry captures one field mutation applied while anonymizing a file.
// Detail carries a byte-count summary of the rewrite; the original field
// contents are deliberately never stored here.
type ChangeEntry struct {
	File     string    `json:"file"`
	Tag      uint8     `json:"tag"`
	Category string    `json:"category"`
	Offset   int64     `json:"offset,omitempty"`
	Detail   string    `json:"detail"`
	Ts       time.Time `json:"ts"`
}

// ChangeLog provides append-only access to a JSONL audit log.
type ChangeLog struct {
	path string
	mu   sync.Mutex
}

// NewChangeLog returns a ChangeLog that writes to the provided path.
func NewChangeLog(path string) *ChangeLog {
	return &ChangeLog{path: path}
}

// Path returns the backing file path for the log.
func (c *ChangeLog) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Append writes a new entry to the audit log. Entries are serialized as JSON
// objects, one per line, to make downstream consumption straightforward.
func (c *ChangeLog) Append(entry ChangeEntry) error {
	if c == nil {
		return errors.New("nil change log")
	}
	if entry.Category == "" {
		return errors.New("change entry missing category")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadChangeLog loads every entry from the supplied JSONL file.
func ReadChangeLog(path string) ([]ChangeEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []ChangeEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry ChangeEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode change entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
