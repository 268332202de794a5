package taskgen_test

import (
	"context"
	"testing"

	"launchpath/internal/config"
	"launchpath/internal/taskgen"
)

func TestGenerateDefaultCatalog(t *testing.T) {
	gen := taskgen.New(config.Default(), 0)
	ctx := context.Background()

	tasks, err := gen.Generate(ctx, "local", "idea-1", "EcoBox")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(tasks) != 6 {
		t.Fatalf("expected 6 tasks from the default catalog, got %d", len(tasks))
	}
	categories := map[string]bool{}
	for i, task := range tasks {
		if task.Completed {
			t.Fatalf("task %q generated as completed", task.Title)
		}
		if task.Position != i {
			t.Fatalf("task %q position %d, want %d", task.Title, task.Position, i)
		}
		if task.OwnerID != "local" || task.IdeaID != "idea-1" {
			t.Fatalf("task %q has wrong owner/idea: %s/%s", task.Title, task.OwnerID, task.IdeaID)
		}
		if task.ID == "" {
			t.Fatalf("task %q missing id", task.Title)
		}
		categories[task.Category] = true
	}
	for _, c := range []string{"legal", "business", "technical", "marketing", "financial"} {
		if !categories[c] {
			t.Fatalf("default catalog missing category %s", c)
		}
	}
}

func TestGenerateSameBatchForAnyTitle(t *testing.T) {
	gen := taskgen.New(config.Default(), 0)
	ctx := context.Background()

	a, err := gen.Generate(ctx, "local", "idea-1", "EcoBox")
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	b, err := gen.Generate(ctx, "local", "idea-2", "Completely different idea")
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("batch sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Title != b[i].Title || a[i].Category != b[i].Category {
			t.Fatalf("catalog order differs at %d: %q vs %q", i, a[i].Title, b[i].Title)
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	gen := taskgen.New(config.Default(), 0)
	ctx := context.Background()

	if _, err := gen.Generate(ctx, "local", "idea-1", "  "); err == nil {
		t.Fatalf("expected error for empty title")
	}

	empty := taskgen.Generator{}
	if _, err := empty.Generate(ctx, "local", "idea-1", "EcoBox"); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
}
