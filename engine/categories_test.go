package engine_test

import (
	"context"
	"testing"

	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

func TestCategories(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("create with defaults", func(t *testing.T) {
		cat, err := eng.CreateCategory(ctx, owner, engine.CategoryInput{Name: "Work"})
		if err != nil {
			t.Fatalf("CreateCategory: %v", err)
		}
		if cat.Color != "#007bff" {
			t.Errorf("color = %q, want default", cat.Color)
		}
	})

	t.Run("name required", func(t *testing.T) {
		_, err := eng.CreateCategory(ctx, owner, engine.CategoryInput{Name: "  "})
		if engine.KindOf(err) != engine.KindValidation {
			t.Fatalf("kind = %s, want %s", engine.KindOf(err), engine.KindValidation)
		}
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := eng.CreateCategory(ctx, owner, engine.CategoryInput{Name: "work"})
		if engine.KindOf(err) != engine.KindValidation {
			t.Fatalf("kind = %s, want %s (names unique per owner, case-insensitive)", engine.KindOf(err), engine.KindValidation)
		}
	})

	t.Run("same name allowed for another owner", func(t *testing.T) {
		if _, err := eng.CreateCategory(ctx, "USR-OTHER", engine.CategoryInput{Name: "Work"}); err != nil {
			t.Fatalf("CreateCategory: %v", err)
		}
	})

	t.Run("rename checks uniqueness", func(t *testing.T) {
		other, err := eng.CreateCategory(ctx, owner, engine.CategoryInput{Name: "Play"})
		if err != nil {
			t.Fatalf("CreateCategory: %v", err)
		}
		name := "Work"
		_, err = eng.UpdateCategory(ctx, owner, other.ID, engine.UpdateCategoryInput{Name: &name})
		if engine.KindOf(err) != engine.KindValidation {
			t.Fatalf("kind = %s, want %s", engine.KindOf(err), engine.KindValidation)
		}
	})

	t.Run("delete blocked while referenced", func(t *testing.T) {
		cat, err := eng.CreateCategory(ctx, owner, engine.CategoryInput{Name: "Busy"})
		if err != nil {
			t.Fatalf("CreateCategory: %v", err)
		}
		catID := cat.ID
		task, err := eng.CreateTask(ctx, owner, engine.CreateTaskInput{Title: "holds category", CategoryID: &catID})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if err := eng.DeleteCategory(ctx, owner, cat.ID); engine.KindOf(err) != engine.KindInvalidState {
			t.Fatalf("kind = %s, want %s", engine.KindOf(err), engine.KindInvalidState)
		}

		empty := ""
		if _, err := eng.UpdateTask(ctx, owner, task.ID, engine.UpdateTaskInput{CategoryID: &empty}); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
		if err := eng.DeleteCategory(ctx, owner, cat.ID); err != nil {
			t.Fatalf("DeleteCategory after unlink: %v", err)
		}
	})
}

func TestCategoryTaskFilter(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	cat, err := eng.CreateCategory(ctx, owner, engine.CategoryInput{Name: "Focus"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	catID := cat.ID
	if _, err := eng.CreateTask(ctx, owner, engine.CreateTaskInput{Title: "in", CategoryID: &catID}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	mustCreate(t, eng, "out")

	tasks, err := eng.ListTasks(ctx, owner, engine.TaskFilter{CategoryID: &catID})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "in" {
		t.Fatalf("filtered tasks = %+v, want just %q", tasks, "in")
	}

	st := models.StatusPending
	tasks, err = eng.ListTasks(ctx, owner, engine.TaskFilter{Status: &st})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("pending tasks = %d, want 2", len(tasks))
	}
}
