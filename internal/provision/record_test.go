package provision

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordRoundTrip(t *testing.T) {
	root := t.TempDir()

	rec, err := readRecord(root)
	if err != nil || rec != nil {
		t.Fatalf("readRecord() on empty root = %+v, %v", rec, err)
	}

	want := &Record{Tag: "v0.1.0", Asset: "tool-linux-x86_64.tar.gz", RunID: "run-1", InstalledAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := writeRecord(root, want); err != nil {
		t.Fatalf("writeRecord() error = %v", err)
	}

	got, err := readRecord(root)
	if err != nil {
		t.Fatalf("readRecord() error = %v", err)
	}
	if got.Tag != want.Tag || got.Asset != want.Asset || got.RunID != want.RunID || !got.InstalledAt.Equal(want.InstalledAt) {
		t.Errorf("readRecord() = %+v, want %+v", got, want)
	}
	if _, err := os.Stat(filepath.Join(root, RecordFileName+".tmp")); !os.IsNotExist(err) {
		t.Error("temp record file left behind")
	}
}

func TestReadRecordCorrupt(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, RecordFileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readRecord(root); err == nil {
		t.Error("expected parse error")
	}
}
