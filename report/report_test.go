package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/timetrack/clock"
	"github.com/ahmadzakiakmal/timetrack/repository/inmem"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

const owner = "USR-REPORT-001"

func setup(t *testing.T) (*Aggregator, *inmem.Store, *clock.Manual) {
	t.Helper()
	store := inmem.NewStore()
	clk := clock.NewManual(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)) // a Wednesday
	return NewAggregator(store, clk), store, clk
}

func insertTask(t *testing.T, store *inmem.Store, task models.Task) {
	t.Helper()
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if err := store.InsertTask(context.Background(), &task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
}

func insertSession(t *testing.T, store *inmem.Store, s models.TimeSession) {
	t.Helper()
	if err := store.InsertSession(context.Background(), &s); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
}

func ts(day, hour, minute int) time.Time {
	return time.Date(2025, 6, day, hour, minute, 0, 0, time.UTC)
}

func TestDailyReport(t *testing.T) {
	agg, store, _ := setup(t)
	ctx := context.Background()

	completedAt := ts(4, 10, 0)
	insertTask(t, store, models.Task{
		ID: "TSK-1", OwnerID: owner, Title: "done today",
		Status: models.StatusCompleted, CompletedAt: &completedAt, TotalTime: 600,
		CreatedAt: ts(3, 9, 0),
	})
	insertTask(t, store, models.Task{
		ID: "TSK-2", OwnerID: owner, Title: "done yesterday",
		Status: models.StatusCompleted, CompletedAt: ptrTime(ts(3, 20, 0)),
		CreatedAt: ts(3, 8, 0),
	})

	ended := ts(4, 9, 0)
	insertSession(t, store, models.TimeSession{
		ID: "SES-1", TaskID: "TSK-1", OwnerID: owner,
		StartedAt: ts(4, 8, 0), EndedAt: &ended, Duration: 3600,
	})
	// Still running, must not count.
	insertSession(t, store, models.TimeSession{
		ID: "SES-2", TaskID: "TSK-1", OwnerID: owner,
		StartedAt: ts(4, 11, 0), IsActive: true,
	})

	daily, err := agg.Daily(ctx, owner, ts(4, 15, 30))
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if daily.Date != "2025-06-04" {
		t.Errorf("date = %s", daily.Date)
	}
	if daily.CompletedTasks != 1 {
		t.Errorf("completed = %d, want 1", daily.CompletedTasks)
	}
	if daily.TotalTime != 3600 {
		t.Errorf("total_time = %d, want 3600", daily.TotalTime)
	}
	if daily.TotalTimeFormatted != "1h 0m" {
		t.Errorf("formatted = %q", daily.TotalTimeFormatted)
	}
	if len(daily.Tasks) != 1 || daily.Tasks[0].ID != "TSK-1" {
		t.Errorf("tasks = %+v", daily.Tasks)
	}
}

func TestDailyAttributesMidnightSpanToStartDay(t *testing.T) {
	agg, store, _ := setup(t)
	ctx := context.Background()

	insertTask(t, store, models.Task{
		ID: "TSK-NIGHT", OwnerID: owner, Title: "night owl",
		Status: models.StatusPaused, CreatedAt: ts(3, 9, 0),
	})
	// 23:50 on the 3rd to 00:10 on the 4th.
	ended := ts(4, 0, 10)
	insertSession(t, store, models.TimeSession{
		ID: "SES-NIGHT", TaskID: "TSK-NIGHT", OwnerID: owner,
		StartedAt: ts(3, 23, 50), EndedAt: &ended, Duration: 1200,
	})

	day3, err := agg.Daily(ctx, owner, ts(3, 12, 0))
	if err != nil {
		t.Fatalf("Daily(3rd): %v", err)
	}
	if day3.TotalTime != 1200 {
		t.Errorf("3rd total = %d, want 1200 (whole session on start day)", day3.TotalTime)
	}

	day4, err := agg.Daily(ctx, owner, ts(4, 12, 0))
	if err != nil {
		t.Fatalf("Daily(4th): %v", err)
	}
	if day4.TotalTime != 0 {
		t.Errorf("4th total = %d, want 0", day4.TotalTime)
	}
}

func TestWeeklyReport(t *testing.T) {
	agg, store, _ := setup(t)
	ctx := context.Background()

	// Week of Monday June 2nd .. Sunday June 8th.
	insertTask(t, store, models.Task{
		ID: "TSK-W1", OwnerID: owner, Title: "monday done",
		Status: models.StatusCompleted, CompletedAt: ptrTime(ts(2, 18, 0)),
		CreatedAt: ts(2, 9, 0),
	})
	insertTask(t, store, models.Task{
		ID: "TSK-W2", OwnerID: owner, Title: "thursday done",
		Status: models.StatusCompleted, CompletedAt: ptrTime(ts(5, 18, 0)),
		CreatedAt: ts(5, 9, 0),
	})
	// Previous week, excluded.
	insertTask(t, store, models.Task{
		ID: "TSK-W0", OwnerID: owner, Title: "old",
		Status: models.StatusCompleted, CompletedAt: ptrTime(ts(1, 18, 0)),
		CreatedAt: ts(1, 9, 0),
	})

	ended := ts(2, 10, 0)
	insertSession(t, store, models.TimeSession{
		ID: "SES-W1", TaskID: "TSK-W1", OwnerID: owner,
		StartedAt: ts(2, 9, 0), EndedAt: &ended, Duration: 3600,
	})
	ended2 := ts(5, 9, 30)
	insertSession(t, store, models.TimeSession{
		ID: "SES-W2", TaskID: "TSK-W2", OwnerID: owner,
		StartedAt: ts(5, 9, 0), EndedAt: &ended2, Duration: 1800,
	})

	weekly, err := agg.Weekly(ctx, owner, ts(4, 12, 0))
	if err != nil {
		t.Fatalf("Weekly: %v", err)
	}
	if weekly.WeekStart != "2025-06-02" || weekly.WeekEnd != "2025-06-08" {
		t.Errorf("window = %s..%s", weekly.WeekStart, weekly.WeekEnd)
	}
	if weekly.TotalCompleted != 2 {
		t.Errorf("completed = %d, want 2", weekly.TotalCompleted)
	}
	if weekly.TotalTime != 5400 {
		t.Errorf("total_time = %d, want 5400", weekly.TotalTime)
	}
	if len(weekly.DailyBreakdown) != 7 {
		t.Fatalf("buckets = %d, want 7", len(weekly.DailyBreakdown))
	}
	monday := weekly.DailyBreakdown[0]
	if monday.Date != "2025-06-02" || monday.CompletedTasks != 1 || monday.TotalTime != 3600 {
		t.Errorf("monday = %+v", monday)
	}
	thursday := weekly.DailyBreakdown[3]
	if thursday.CompletedTasks != 1 || thursday.TotalTime != 1800 {
		t.Errorf("thursday = %+v", thursday)
	}
	tuesday := weekly.DailyBreakdown[1]
	if tuesday.CompletedTasks != 0 || tuesday.TotalTime != 0 {
		t.Errorf("tuesday should be empty: %+v", tuesday)
	}
}

func TestWeeklyAnchorsOnSunday(t *testing.T) {
	agg, _, _ := setup(t)

	// June 8th 2025 is a Sunday; its week still starts Monday the 2nd.
	weekly, err := agg.Weekly(context.Background(), owner, ts(8, 12, 0))
	if err != nil {
		t.Fatalf("Weekly: %v", err)
	}
	if weekly.WeekStart != "2025-06-02" {
		t.Errorf("week start = %s, want 2025-06-02", weekly.WeekStart)
	}
}

func TestStats(t *testing.T) {
	agg, store, _ := setup(t)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		stats, err := agg.Stats(ctx, owner)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.CompletionRate != 0.0 {
			t.Errorf("rate = %v, want 0.0", stats.CompletionRate)
		}
		if stats.TotalTasks != 0 {
			t.Errorf("total = %d, want 0", stats.TotalTasks)
		}
	})

	if err := store.InsertCategory(ctx, &models.Category{
		ID: "CTG-1", OwnerID: owner, Name: "Work", Color: "#007bff",
	}); err != nil {
		t.Fatalf("InsertCategory: %v", err)
	}

	catID := "CTG-1"
	insertTask(t, store, models.Task{
		ID: "TSK-S1", OwnerID: owner, Title: "a", Status: models.StatusCompleted,
		CompletedAt: ptrTime(ts(4, 10, 0)), CategoryID: &catID, TotalTime: 100,
		CreatedAt: ts(1, 0, 0),
	})
	insertTask(t, store, models.Task{
		ID: "TSK-S2", OwnerID: owner, Title: "b", Status: models.StatusInProgress,
		TotalTime: 50, CreatedAt: ts(2, 0, 0),
	})
	insertTask(t, store, models.Task{
		ID: "TSK-S3", OwnerID: owner, Title: "c", Status: models.StatusPending,
		CreatedAt: ts(3, 0, 0),
	})

	stats, err := agg.Stats(ctx, owner)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalTasks != 3 || stats.Completed != 1 || stats.InProgress != 1 || stats.Pending != 1 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.CompletionRate != 33.3 {
		t.Errorf("rate = %v, want 33.3", stats.CompletionRate)
	}
	if stats.TotalTime != 150 {
		t.Errorf("total_time = %d, want 150", stats.TotalTime)
	}
	if got := stats.ByCategory["Work"]; got.Count != 1 || got.TotalTime != 100 {
		t.Errorf("Work = %+v", got)
	}
	if got := stats.ByCategory["Uncategorized"]; got.Count != 2 || got.TotalTime != 50 {
		t.Errorf("Uncategorized = %+v", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "0m"},
		{-5, "0m"},
		{42, "42s"},
		{60, "1m"},
		{90, "1m 30s"},
		{3600, "1h 0m"},
		{5400, "1h 30m"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.seconds); got != tc.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestExport(t *testing.T) {
	agg, store, _ := setup(t)
	ctx := context.Background()

	insertTask(t, store, models.Task{
		ID: "TSK-E1", OwnerID: owner, Title: "export me",
		Status: models.StatusCompleted, CompletedAt: ptrTime(ts(4, 10, 0)),
		TotalTime: 120, Tags: []string{"go", "api"}, CreatedAt: ts(1, 0, 0),
	})
	insertTask(t, store, models.Task{
		ID: "TSK-E2", OwnerID: owner, Title: "and me",
		Status: models.StatusPending, CreatedAt: ts(2, 0, 0),
	})

	t.Run("json", func(t *testing.T) {
		data, err := agg.Export(ctx, owner)
		if err != nil {
			t.Fatalf("Export: %v", err)
		}
		if data.Summary.TotalTasks != 2 || data.Summary.CompletedTasks != 1 {
			t.Errorf("summary = %+v", data.Summary)
		}
		if data.Summary.TotalTimeTracked != 120 {
			t.Errorf("tracked = %d, want 120", data.Summary.TotalTimeTracked)
		}
	})

	t.Run("csv", func(t *testing.T) {
		out, err := agg.ExportCSV(ctx, owner)
		if err != nil {
			t.Fatalf("ExportCSV: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		if len(lines) != 3 {
			t.Fatalf("lines = %d, want header plus 2 rows", len(lines))
		}
		if !strings.HasPrefix(lines[0], "Title,") {
			t.Errorf("header = %q", lines[0])
		}
		if !strings.Contains(string(out), "go;api") {
			t.Errorf("tags not joined: %s", out)
		}
	})
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
