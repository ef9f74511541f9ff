package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecordFileName is the install record kept beside bin/ in the storage root.
const RecordFileName = ".install.json"

// Record describes the release that produced the installed executable.
type Record struct {
	Tag         string    `json:"tag"`
	Asset       string    `json:"asset"`
	RunID       string    `json:"run_id"`
	InstalledAt time.Time `json:"installed_at"`
}

// readRecord loads the install record. A missing record is (nil, nil).
func readRecord(storageRoot string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(storageRoot, RecordFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read install record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse install record: %w", err)
	}
	return &rec, nil
}

// writeRecord replaces the install record atomically.
func writeRecord(storageRoot string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal install record: %w", err)
	}

	path := filepath.Join(storageRoot, RecordFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write install record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename install record: %w", err)
	}
	return nil
}
