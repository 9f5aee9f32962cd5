package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

// ExportSummary carries the totals block of a full export.
type ExportSummary struct {
	TotalTasks       int   `json:"total_tasks"`
	CompletedTasks   int   `json:"completed_tasks"`
	TotalTimeTracked int64 `json:"total_time_tracked"`
}

// ExportData bundles everything an owner has for backup or migration.
type ExportData struct {
	ExportDate time.Time            `json:"export_date"`
	OwnerID    string               `json:"owner_id"`
	Tasks      []models.Task        `json:"tasks"`
	Sessions   []models.TimeSession `json:"sessions"`
	Categories []models.Category    `json:"categories"`
	Summary    ExportSummary        `json:"summary"`
}

// Export gathers all of the owner's data into one structure, suitable
// for JSON serialization by the caller.
func (a *Aggregator) Export(ctx context.Context, ownerID string) (*ExportData, error) {
	tasks, err := a.store.ListTasks(ctx, ownerID, engine.TaskFilter{})
	if err != nil {
		return nil, err
	}
	sessions, err := a.store.SessionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	categories, err := a.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	data := &ExportData{
		ExportDate: a.clock.Now(),
		OwnerID:    ownerID,
		Tasks:      tasks,
		Sessions:   sessions,
		Categories: categories,
	}
	for _, t := range tasks {
		data.Summary.TotalTasks++
		data.Summary.TotalTimeTracked += t.TotalTime
		if t.Status == models.StatusCompleted {
			data.Summary.CompletedTasks++
		}
	}
	return data, nil
}

// ExportCSV renders the owner's tasks as a CSV document, one row per
// task. Tags are joined with ";" inside a single cell.
func (a *Aggregator) ExportCSV(ctx context.Context, ownerID string) ([]byte, error) {
	tasks, err := a.store.ListTasks(ctx, ownerID, engine.TaskFilter{})
	if err != nil {
		return nil, err
	}
	categories, err := a.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"Title", "Description", "Status", "Priority", "Category",
		"Tags", "Total Time (seconds)", "Created At", "Completed At",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		category := ""
		if t.CategoryID != nil {
			category = names[*t.CategoryID]
		}
		completedAt := ""
		if t.CompletedAt != nil {
			completedAt = t.CompletedAt.Format(time.RFC3339)
		}
		row := []string{
			t.Title,
			t.Description,
			string(t.Status),
			string(t.Priority),
			category,
			strings.Join(t.Tags, ";"),
			strconv.FormatInt(t.TotalTime, 10),
			t.CreatedAt.Format(time.RFC3339),
			completedAt,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
