package validator_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"launchpath/internal/db"
	"launchpath/internal/migrate"
	"launchpath/internal/repo"
	"launchpath/internal/validator"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestValidateAppendsHistory(t *testing.T) {
	r := newTestRepo(t)
	eng := validator.New(r, 0)
	eng.Rand = rand.New(rand.NewSource(1))
	ctx := context.Background()
	in := validator.Input{
		OwnerID:     "local",
		IdeaID:      "idea-1",
		Title:       "EcoBox",
		Description: "Compostable shipping boxes",
	}

	first, err := eng.Validate(ctx, in)
	if err != nil {
		t.Fatalf("first validate: %v", err)
	}
	second, err := eng.Validate(ctx, in)
	if err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct result ids, both %s", first.ID)
	}
	if first.IdeaTitle != "EcoBox" || second.IdeaTitle != "EcoBox" {
		t.Fatalf("expected frozen title on both results")
	}

	for _, score := range []int{
		first.OverallScore, first.MarketPotentialScore,
		first.FeasibilityScore, first.CompetitiveLandscapeScore,
	} {
		if score < 0 || score > 100 {
			t.Fatalf("score %d out of range", score)
		}
	}

	history, err := r.ListValidationResults(ctx, "local")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 results in history, got %d", len(history))
	}
	if history[0].ID != first.ID || history[1].ID != second.ID {
		t.Fatalf("history out of order: %s, %s", history[0].ID, history[1].ID)
	}
}

func TestValidateRequiresInput(t *testing.T) {
	r := newTestRepo(t)
	eng := validator.New(r, 0)
	ctx := context.Background()

	if _, err := eng.Validate(ctx, validator.Input{OwnerID: "local", Description: "d"}); err == nil {
		t.Fatalf("expected error for missing title")
	}
	if _, err := eng.Validate(ctx, validator.Input{OwnerID: "local", Title: "t"}); err == nil {
		t.Fatalf("expected error for missing description")
	}
	if _, err := eng.Validate(ctx, validator.Input{Title: "t", Description: "d"}); err == nil {
		t.Fatalf("expected error for missing owner")
	}
	if _, err := eng.Validate(ctx, validator.Input{OwnerID: "local", Title: "   ", Description: "d"}); err == nil {
		t.Fatalf("expected error for whitespace title")
	}
}

func TestValidateHonorsContext(t *testing.T) {
	r := newTestRepo(t)
	eng := validator.New(r, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Validate(ctx, validator.Input{
		OwnerID: "local", IdeaID: "idea-1", Title: "EcoBox", Description: "d",
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
	history, err := r.ListValidationResults(context.Background(), "local")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("canceled validation must not persist, got %d results", len(history))
	}
}
