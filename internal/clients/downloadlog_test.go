package clients

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDownloadLog_HeaderOncePerDay(t *testing.T) {
	dir := t.TempDir()
	l, err := NewDownloadLog(dir)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	day1 := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	for _, at := range []time.Time{day1, day1.Add(time.Minute), day2} {
		if err := l.Append(DownloadEntry{StudentID: "STU-1", InvoiceNumber: "INV-1", ActionType: "download"}, at); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "download-log-2025-03.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	if n := strings.Count(text, "==== 04/03/2025 ===="); n != 1 {
		t.Errorf("expected one header for day one, got %d", n)
	}
	if n := strings.Count(text, "==== 05/03/2025 ===="); n != 1 {
		t.Errorf("expected one header for day two, got %d", n)
	}
	if !strings.Contains(text, "StudentID: STU-1, Invoice: INV-1, Action: download, Time: 2025-03-04T10:00:00.000Z\n") {
		t.Errorf("unexpected log contents:\n%s", text)
	}
	if n := strings.Count(text, "StudentID:"); n != 3 {
		t.Errorf("expected 3 entries, got %d", n)
	}
}
