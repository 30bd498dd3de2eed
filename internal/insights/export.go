package insights

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"repolens/internal/api"
	"repolens/internal/model"
)

const dateLayout = "2006-01-02"

// NewExportRequest validates an export order. Weekly and monthly exports
// need both dates with start not after end; a complete export ignores them.
func NewExportRequest(kind, start, end string) (api.CreateExportRequest, error) {
	t := model.ExportType(strings.ToLower(strings.TrimSpace(kind)))
	switch t {
	case model.ExportComplete:
		return api.CreateExportRequest{ExportType: t}, nil
	case model.ExportWeekly, model.ExportMonthly:
	default:
		return api.CreateExportRequest{}, api.NewValidation("export_type", "Choose weekly, monthly or complete.")
	}

	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return api.CreateExportRequest{}, api.NewValidation("date_range", "Select both a start and an end date.")
	}
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return api.CreateExportRequest{}, api.NewValidation("date_range_start", "Start date must be YYYY-MM-DD.")
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return api.CreateExportRequest{}, api.NewValidation("date_range_end", "End date must be YYYY-MM-DD.")
	}
	if from.After(to) {
		return api.CreateExportRequest{}, api.NewValidation("date_range", "Start date must not be after the end date.")
	}
	return api.CreateExportRequest{ExportType: t, DateRangeStart: start, DateRangeEnd: end}, nil
}

// SaveDownload writes d into dir under its server-given name and returns the
// path written. Directory components in the name are dropped.
func SaveDownload(d *api.Download, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	name := filepath.Base(filepath.Clean(d.Filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "export.md"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, d.Data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// HumanSize renders a byte count for the exports list.
func HumanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
