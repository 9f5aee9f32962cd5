// Package report reduces tasks and time sessions into daily/weekly
// summaries and completion statistics.
//
// Attribution policy: completion counts follow the task's completed_at
// date; time totals follow the session's started_at date. A session
// spanning midnight is credited wholly to the day it started.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ahmadzakiakmal/timetrack/clock"
	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

const dateLayout = "2006-01-02"

type Aggregator struct {
	store engine.Store
	clock clock.Clock
}

func NewAggregator(store engine.Store, clk clock.Clock) *Aggregator {
	return &Aggregator{store: store, clock: clk}
}

// TaskSummary is the per-task line in a daily report.
type TaskSummary struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Priority  models.TaskPriority `json:"priority"`
	TotalTime int64               `json:"total_time"`
}

type DailyReport struct {
	Date               string        `json:"date"`
	CompletedTasks     int           `json:"completed_tasks"`
	TotalTime          int64         `json:"total_time"`
	TotalTimeFormatted string        `json:"total_time_formatted"`
	Tasks              []TaskSummary `json:"tasks"`
}

// Daily reports completions and tracked time for one server-local day.
func (a *Aggregator) Daily(ctx context.Context, ownerID string, date time.Time) (*DailyReport, error) {
	start := startOfDay(date)
	end := start.Add(24*time.Hour - time.Millisecond)

	completed, err := a.completedBetween(ctx, ownerID, start, end)
	if err != nil {
		return nil, err
	}

	report := &DailyReport{
		Date:  start.Format(dateLayout),
		Tasks: []TaskSummary{},
	}
	for _, t := range completed {
		report.CompletedTasks++
		report.Tasks = append(report.Tasks, TaskSummary{
			ID: t.ID, Title: t.Title, Priority: t.Priority, TotalTime: t.TotalTime,
		})
	}

	sessions, err := a.store.SessionsInRange(ctx, ownerID, start, end)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.IsActive {
			continue
		}
		report.TotalTime += s.Duration
	}
	report.TotalTimeFormatted = FormatDuration(report.TotalTime)
	return report, nil
}

// DayBucket is one day's slice of a weekly report.
type DayBucket struct {
	Date           string `json:"date"`
	CompletedTasks int    `json:"completed_tasks"`
	TotalTime      int64  `json:"total_time"`
}

type WeeklyReport struct {
	WeekStart          string      `json:"start_date"`
	WeekEnd            string      `json:"end_date"`
	TotalCompleted     int         `json:"total_completed_tasks"`
	TotalTime          int64       `json:"total_time"`
	TotalTimeFormatted string      `json:"total_time_formatted"`
	DailyBreakdown     []DayBucket `json:"daily_stats"`
}

// Weekly reports the Monday..Sunday week containing ref. All seven day
// buckets are present even when empty.
func (a *Aggregator) Weekly(ctx context.Context, ownerID string, ref time.Time) (*WeeklyReport, error) {
	weekStart := startOfDay(mondayOf(ref))
	weekEnd := weekStart.AddDate(0, 0, 7).Add(-time.Millisecond)

	report := &WeeklyReport{
		WeekStart:      weekStart.Format(dateLayout),
		WeekEnd:        weekStart.AddDate(0, 0, 6).Format(dateLayout),
		DailyBreakdown: make([]DayBucket, 7),
	}
	bucketIndex := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		key := weekStart.AddDate(0, 0, i).Format(dateLayout)
		report.DailyBreakdown[i] = DayBucket{Date: key}
		bucketIndex[key] = i
	}

	completed, err := a.completedBetween(ctx, ownerID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	for _, t := range completed {
		report.TotalCompleted++
		if i, ok := bucketIndex[t.CompletedAt.Format(dateLayout)]; ok {
			report.DailyBreakdown[i].CompletedTasks++
		}
	}

	sessions, err := a.store.SessionsInRange(ctx, ownerID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.IsActive {
			continue
		}
		report.TotalTime += s.Duration
		if i, ok := bucketIndex[s.StartedAt.Format(dateLayout)]; ok {
			report.DailyBreakdown[i].TotalTime += s.Duration
		}
	}
	report.TotalTimeFormatted = FormatDuration(report.TotalTime)
	return report, nil
}

// CategoryStat is the per-category rollup in completion statistics.
type CategoryStat struct {
	Count     int   `json:"count"`
	TotalTime int64 `json:"total_time"`
}

type CompletionStats struct {
	TotalTasks         int                     `json:"total_tasks"`
	Completed          int                     `json:"completed_tasks"`
	InProgress         int                     `json:"in_progress_tasks"`
	Paused             int                     `json:"paused_tasks"`
	Pending            int                     `json:"pending_tasks"`
	CompletionRate     float64                 `json:"completion_rate"`
	TotalTime          int64                   `json:"total_time"`
	TotalTimeFormatted string                  `json:"total_time_formatted"`
	ByCategory         map[string]CategoryStat `json:"category_distribution"`
}

// Stats summarizes every task the owner has. The completion rate is a
// percentage rounded to one decimal, 0.0 for an empty task list.
func (a *Aggregator) Stats(ctx context.Context, ownerID string) (*CompletionStats, error) {
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

	stats := &CompletionStats{ByCategory: make(map[string]CategoryStat)}
	for _, t := range tasks {
		stats.TotalTasks++
		stats.TotalTime += t.TotalTime
		switch t.Status {
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusPaused:
			stats.Paused++
		default:
			stats.Pending++
		}

		name := "Uncategorized"
		if t.CategoryID != nil {
			if n, ok := names[*t.CategoryID]; ok {
				name = n
			}
		}
		cs := stats.ByCategory[name]
		cs.Count++
		cs.TotalTime += t.TotalTime
		stats.ByCategory[name] = cs
	}
	if stats.TotalTasks > 0 {
		rate := float64(stats.Completed) / float64(stats.TotalTasks) * 100
		stats.CompletionRate = math.Round(rate*10) / 10
	}
	stats.TotalTimeFormatted = FormatDuration(stats.TotalTime)
	return stats, nil
}

// completedBetween returns tasks whose completed_at falls in [from, to].
func (a *Aggregator) completedBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Task, error) {
	st := models.StatusCompleted
	tasks, err := a.store.ListTasks(ctx, ownerID, engine.TaskFilter{Status: &st})
	if err != nil {
		return nil, err
	}
	var out []models.Task
	for _, t := range tasks {
		if t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(from) || t.CompletedAt.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// mondayOf returns the Monday of the week containing t.
func mondayOf(t time.Time) time.Time {
	offset := int(t.Weekday())
	if offset == 0 {
		offset = 7
	}
	return t.AddDate(0, 0, -offset+1)
}

// FormatDuration renders seconds as a compact human string.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0m"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", minutes, secs)
		}
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
