package clients

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DownloadLog appends invoice download events to monthly text files,
// download-log-YYYY-MM.txt, with one date header per day.
type DownloadLog struct {
	Dir string
	mu  sync.Mutex
}

func NewDownloadLog(dir string) (*DownloadLog, error) {
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure log dir %q: %w", dir, err)
	}
	return &DownloadLog{Dir: dir}, nil
}

type DownloadEntry struct {
	StudentID     string
	InvoiceNumber string
	ActionType    string
}

func (l *DownloadLog) path(now time.Time) string {
	return filepath.Join(l.Dir, fmt.Sprintf("download-log-%s.txt", now.Format("2006-01")))
}

func (l *DownloadLog) Append(e DownloadEntry, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.path(now)
	header := fmt.Sprintf("==== %s ====", now.Format("02/01/2006"))

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read download log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open download log: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if !bytes.Contains(existing, []byte(header)) {
		buf.WriteString("\n" + header + "\n")
	}
	fmt.Fprintf(&buf, "StudentID: %s, Invoice: %s, Action: %s, Time: %s\n",
		e.StudentID, e.InvoiceNumber, e.ActionType, now.UTC().Format("2006-01-02T15:04:05.000Z"))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write download log: %w", err)
	}
	return nil
}
