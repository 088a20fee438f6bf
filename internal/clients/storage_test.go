package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func TestGetURL_AbsoluteAndRelative(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := NewLocalStorage(tmpDir, "/files", "http://example.com:5000/")
	if err != nil {
		t.Fatalf("failed create storage: %v", err)
	}

	if got, want := c.GetURL("a.xlsx"), "http://example.com:5000/files/a.xlsx"; got != want {
		t.Fatalf("expected %s; got %s", want, got)
	}

	c2, _ := NewLocalStorage(tmpDir, "files/", "")
	if got := c2.GetURL("b.csv"); got != "/files/b.csv" {
		t.Fatalf("expected /files/b.csv; got %s", got)
	}
}

func TestSaveResolveAndServe(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}

	content := []byte("paymentId,amount\n123456789012,150.00\n")
	saved, err := c.Save(context.Background(), "../ledger 2025-01.csv", content)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.Contains(saved, "..") || strings.Contains(saved, "/") {
		t.Fatalf("stored name must not contain path elements: %s", saved)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, name, err := c.Resolve(strings.TrimPrefix(r.URL.Path, "/files/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
		http.ServeFile(w, r, path)
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + c.GetURL(saved))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bad status: %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "ledger 2025-01.csv") {
		t.Fatalf("expected Content-Disposition with original filename, got %s", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(content) {
		t.Fatalf("content mismatch: %s", string(body))
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	c, _ := NewLocalStorage(t.TempDir(), "/files", "")

	for _, name := range []string{"", "../secret", ".env", "a/b.xlsx", "missing.xlsx"} {
		if _, _, err := c.Resolve(name); !errors.Is(err, ErrFileNotFound) {
			t.Errorf("%q: expected ErrFileNotFound, got %v", name, err)
		}
	}
}

func TestCleanupOlderThan(t *testing.T) {
	c, _ := NewLocalStorage(t.TempDir(), "/files", "")
	ctx := context.Background()

	old, _ := c.Save(ctx, "old.xlsx", []byte("x"))
	fresh, _ := c.Save(ctx, "fresh.xlsx", []byte("y"))

	oldPath, _, _ := c.Resolve(old)
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := c.CleanupOlderThan(30 * time.Minute); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, _, err := c.Resolve(old); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected old file to be removed, got %v", err)
	}
	if _, _, err := c.Resolve(fresh); err != nil {
		t.Errorf("expected fresh file to survive, got %v", err)
	}
}
