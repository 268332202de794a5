package pipeline_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"launchpath/internal/config"
	"launchpath/internal/db"
	"launchpath/internal/domain"
	"launchpath/internal/migrate"
	"launchpath/internal/pipeline"
	"launchpath/internal/repo"
	"launchpath/internal/spotlight"
	"launchpath/internal/taskgen"
)

type testEnv struct {
	Conn *sql.DB
	Cfg  *config.Config
	Repo repo.Repo
	Ctx  context.Context
}

func newTestEnv(t *testing.T) testEnv {
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
	cfg := config.Default()
	cfg.Pipeline.GraceDelay = 0
	cfg.Pipeline.ValidationDelay = 0
	cfg.Pipeline.GenerationDelay = 0
	return testEnv{Conn: conn, Cfg: cfg, Repo: repo.Repo{DB: conn}, Ctx: context.Background()}
}

func setOnboarding(t *testing.T, env testEnv, path, title, desc string) {
	t.Helper()
	err := env.Repo.UpsertOnboardingRecord(env.Ctx, domain.OnboardingRecord{
		OwnerID:         "local",
		Path:            path,
		IdeaTitle:       title,
		IdeaDescription: desc,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("set onboarding: %v", err)
	}
}

// flakyGenerator fails its first N calls, then delegates to the real
// catalog generator.
type flakyGenerator struct {
	failures int
	calls    int
	real     taskgen.Generator
}

func (f *flakyGenerator) Generate(ctx context.Context, ownerID, ideaID, ideaTitle string) ([]domain.RegistrationTask, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("catalog unavailable")
	}
	return f.real.Generate(ctx, ownerID, ideaID, ideaTitle)
}

func TestOnboardingRunsFullPipeline(t *testing.T) {
	env := newTestEnv(t)
	setOnboarding(t, env, "idea", "EcoBox", "Compostable shipping boxes for e-commerce")

	var validated, generated int
	var states []spotlight.State
	orch := pipeline.New(pipeline.Options{
		OwnerID: "local",
		DB:      env.Conn,
		Config:  env.Cfg,
		Presenter: spotlight.PresenterFunc(func(s spotlight.State) {
			states = append(states, s)
		}),
		Observers: pipeline.Observers{
			OnIdeaValidated:  func(domain.ValidationResult) { validated++ },
			OnTasksGenerated: func([]domain.RegistrationTask) { generated++ },
		},
	})

	if err := orch.LoadOnboardingIdea(env.Ctx); err != nil {
		t.Fatalf("load onboarding: %v", err)
	}
	if orch.Stage() != pipeline.StageTasksReady {
		t.Fatalf("stage %s, want %s", orch.Stage(), pipeline.StageTasksReady)
	}
	if validated != 1 || generated != 1 {
		t.Fatalf("observers fired %d/%d times, want 1/1", validated, generated)
	}

	idea, err := env.Repo.GetIdeaByTitle(env.Ctx, "local", "EcoBox")
	if err != nil {
		t.Fatalf("get idea: %v", err)
	}
	if idea.Status != domain.IdeaStatusValidated {
		t.Fatalf("idea status %s, want validated", idea.Status)
	}

	history, err := env.Repo.ListValidationResults(env.Ctx, "local")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 validation result, got %d", len(history))
	}
	if history[0].IdeaTitle != "EcoBox" {
		t.Fatalf("frozen title %q, want EcoBox", history[0].IdeaTitle)
	}

	tasks, err := env.Repo.ListTasks(env.Ctx, "local")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks) != 6 {
		t.Fatalf("expected 6 tasks, got %d", len(tasks))
	}

	if len(states) == 0 {
		t.Fatalf("presenter never rendered")
	}
	final := states[len(states)-1]
	if final.Mode != spotlight.ModeTasks {
		t.Fatalf("final mode %s, want tasks", final.Mode)
	}
	if final.Progress != 0 {
		t.Fatalf("fresh batch progress %d, want 0", final.Progress)
	}
}

func TestAutoValidationFiresOncePerInstance(t *testing.T) {
	env := newTestEnv(t)
	setOnboarding(t, env, "idea", "EcoBox", "Compostable shipping boxes")

	orch := pipeline.New(pipeline.Options{OwnerID: "local", DB: env.Conn, Config: env.Cfg})
	if err := orch.LoadOnboardingIdea(env.Ctx); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := orch.LoadOnboardingIdea(env.Ctx); err != nil {
		t.Fatalf("second load: %v", err)
	}
	history, _ := env.Repo.ListValidationResults(env.Ctx, "local")
	if len(history) != 1 {
		t.Fatalf("auto-validation ran %d times, want 1", len(history))
	}

	// manual validation is not latched
	idea, err := env.Repo.GetIdeaByTitle(env.Ctx, "local", "EcoBox")
	if err != nil {
		t.Fatalf("get idea: %v", err)
	}
	if _, _, err := orch.ValidateIdea(env.Ctx, idea); err != nil {
		t.Fatalf("manual validate: %v", err)
	}
	history, _ = env.Repo.ListValidationResults(env.Ctx, "local")
	if len(history) != 2 {
		t.Fatalf("expected 2 results after manual run, got %d", len(history))
	}
}

func TestOnboardingWithoutIdeaIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	setOnboarding(t, env, "explore", "", "")

	orch := pipeline.New(pipeline.Options{OwnerID: "local", DB: env.Conn, Config: env.Cfg})
	if err := orch.LoadOnboardingIdea(env.Ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if orch.Stage() != pipeline.StageIdle {
		t.Fatalf("stage %s, want idle", orch.Stage())
	}
	ideas, _ := env.Repo.ListIdeas(env.Ctx, "local")
	if len(ideas) != 0 {
		t.Fatalf("no-op load created %d ideas", len(ideas))
	}
}

func TestMissingOnboardingRecordIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	orch := pipeline.New(pipeline.Options{OwnerID: "local", DB: env.Conn, Config: env.Cfg})
	if err := orch.LoadOnboardingIdea(env.Ctx); err != nil {
		t.Fatalf("load with no record: %v", err)
	}
	if orch.Stage() != pipeline.StageIdle {
		t.Fatalf("stage %s, want idle", orch.Stage())
	}
}

func TestSaveDraftUpsertsByTitle(t *testing.T) {
	env := newTestEnv(t)
	orch := pipeline.New(pipeline.Options{OwnerID: "local", DB: env.Conn, Config: env.Cfg})

	first, created, err := orch.SaveDraft(env.Ctx, "EcoBox", "v1")
	if err != nil || !created {
		t.Fatalf("first save: created=%v err=%v", created, err)
	}
	second, created, err := orch.SaveDraft(env.Ctx, "EcoBox", "v2 ignored")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if created {
		t.Fatalf("second save reported created=true")
	}
	if second.ID != first.ID {
		t.Fatalf("upsert returned a different idea: %s vs %s", second.ID, first.ID)
	}
	ideas, _ := env.Repo.ListIdeas(env.Ctx, "local")
	if len(ideas) != 1 {
		t.Fatalf("expected 1 idea after upsert, got %d", len(ideas))
	}
}

func TestTaskGenerationFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	gen := &flakyGenerator{failures: 1, real: taskgen.New(env.Cfg, 0)}
	orch := pipeline.New(pipeline.Options{
		OwnerID:   "local",
		DB:        env.Conn,
		Config:    env.Cfg,
		Generator: gen,
	})

	idea, _, err := orch.SaveDraft(env.Ctx, "EcoBox", "Compostable shipping boxes")
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}

	_, _, err = orch.ValidateIdea(env.Ctx, idea)
	var pe *pipeline.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	if pe.Stage != pipeline.StageGeneratingTasks {
		t.Fatalf("failed stage %s, want %s", pe.Stage, pipeline.StageGeneratingTasks)
	}
	if orch.Stage() != pipeline.StageValidatedTasksPending {
		t.Fatalf("stage %s, want %s", orch.Stage(), pipeline.StageValidatedTasksPending)
	}

	// the validation result survived the failure
	history, _ := env.Repo.ListValidationResults(env.Ctx, "local")
	if len(history) != 1 {
		t.Fatalf("expected the validation result to be stored, got %d", len(history))
	}
	tasks, _ := env.Repo.ListTasks(env.Ctx, "local")
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks after failure, got %d", len(tasks))
	}

	retried, err := orch.RetryTaskGeneration(env.Ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(retried) != 6 {
		t.Fatalf("retry generated %d tasks, want 6", len(retried))
	}
	if orch.Stage() != pipeline.StageTasksReady {
		t.Fatalf("stage after retry %s, want %s", orch.Stage(), pipeline.StageTasksReady)
	}

	// history is untouched by the retry
	history, _ = env.Repo.ListValidationResults(env.Ctx, "local")
	if len(history) != 1 {
		t.Fatalf("retry re-validated: %d results", len(history))
	}

	if _, err := orch.RetryTaskGeneration(env.Ctx); err == nil {
		t.Fatalf("expected error retrying with nothing pending")
	}
}

func TestManagerSharesOrchestratorPerOwner(t *testing.T) {
	env := newTestEnv(t)
	mgr := pipeline.NewManager(env.Conn, env.Cfg)

	a := mgr.ForOwner("alice")
	if a != mgr.ForOwner("alice") {
		t.Fatalf("same owner got different orchestrators")
	}
	if a == mgr.ForOwner("bob") {
		t.Fatalf("different owners share an orchestrator")
	}
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	env := newTestEnv(t)
	orch := pipeline.New(pipeline.Options{OwnerID: "local", DB: env.Conn, Config: env.Cfg})
	if err := orch.SetMode(env.Ctx, "sideways"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if err := orch.SetMode(env.Ctx, spotlight.ModeConnections); err != nil {
		t.Fatalf("set connections: %v", err)
	}
	state, err := orch.State(env.Ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Mode != spotlight.ModeConnections {
		t.Fatalf("mode %s, want connections", state.Mode)
	}
}
