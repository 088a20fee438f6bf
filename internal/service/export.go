package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"dhronas-fees/internal/clients"
	"dhronas-fees/internal/domain"
)

// ExportService reads back the statuses written by LedgerExportService.
type ExportService struct {
	statuses ExportStatusStore
	now      func() time.Time
}

func NewExportService(statuses ExportStatusStore) *ExportService {
	return &ExportService{statuses: statuses, now: time.Now}
}

type ExportView struct {
	Key       string         `json:"key"`
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	Progress  float64        `json:"progress"`
	Stage     string         `json:"stage,omitempty"`
	FileURL   *string        `json:"file_url"`
	Error     string         `json:"error,omitempty"`
	Filters   map[string]any `json:"filters"`
	CreatedAt string         `json:"created_at"`
}

func (s *ExportService) view(st ExportStatus) ExportView {
	return ExportView{
		Key:       st.Key,
		Type:      st.Type,
		UserID:    st.UserID,
		Progress:  st.Progress,
		Stage:     st.Stage,
		FileURL:   st.FileURL,
		Error:     st.Error,
		Filters:   st.Filters,
		CreatedAt: humanizeAgo(st.Created, s.now()),
	}
}

func (s *ExportService) load(ctx context.Context, key string) (*ExportStatus, error) {
	data, err := s.statuses.Get(ctx, key)
	if errors.Is(err, clients.ErrCacheMiss) {
		return nil, domain.ErrExportNotFound
	}
	if err != nil {
		return nil, err
	}
	var st ExportStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to parse export status: %w", err)
	}
	return &st, nil
}

// GetExports lists the caller's live exports, newest first. Expired entries
// are dropped from the caller's set on the way.
func (s *ExportService) GetExports(ctx context.Context, who domain.Identity) ([]ExportView, error) {
	if who.IsZero() {
		return nil, domain.ErrForbidden
	}
	setKey := userExportsKey(who.StudentID())
	keys, err := s.statuses.SMembers(ctx, setKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get export keys: %w", err)
	}

	var statuses []ExportStatus
	for _, key := range keys {
		st, err := s.load(ctx, key)
		if errors.Is(err, domain.ErrExportNotFound) {
			_ = s.statuses.SRem(ctx, setKey, key)
			continue
		}
		if err != nil || st.UserID != who.StudentID() {
			continue
		}
		statuses = append(statuses, *st)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	out := make([]ExportView, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, s.view(st))
	}
	return out, nil
}

func (s *ExportService) GetExport(ctx context.Context, who domain.Identity, exportID string) (*ExportView, error) {
	st, err := s.load(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if st.UserID != who.StudentID() {
		return nil, domain.ErrExportNotFound
	}
	v := s.view(*st)
	return &v, nil
}

func humanizeAgo(t, now time.Time) string {
	if t.After(now) {
		return "just now"
	}
	minutes := int(now.Sub(t).Minutes())
	if minutes < 1 {
		return "just now"
	}
	if minutes < 60 {
		return plural(minutes, "minute") + " ago"
	}
	hours := minutes / 60
	if hours < 24 {
		return plural(hours, "hour") + " ago"
	}
	days := hours / 24
	if days < 30 {
		return plural(days, "day") + " ago"
	}
	return t.Format("02 Jan 2006 15:04")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
