package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"launchpath/internal/config"
	"launchpath/internal/domain"
	"launchpath/internal/events"
	"launchpath/internal/repo"
	"launchpath/internal/spotlight"
	"launchpath/internal/taskgen"
	"launchpath/internal/tracker"
	"launchpath/internal/validator"
)

// Stage is the orchestrator's position in the onboarding flow.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageDraftLoaded     Stage = "draft_loaded"
	StageAutoSaved       Stage = "auto_saved"
	StageValidating      Stage = "validating"
	StageValidated       Stage = "validated"
	StageGeneratingTasks Stage = "generating_tasks"
	StageTasksReady      Stage = "tasks_ready"
	// StageValidatedTasksPending records the validated-but-no-tasks partial
	// failure so a caller can retry just the task step without re-running
	// validation.
	StageValidatedTasksPending Stage = "validated_tasks_pending"
)

// PipelineError tags a failure with the stage it happened in. Underlying
// storage and engine errors are wrapped, not swallowed.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Validator scores an idea. *validator.Engine satisfies this; tests may
// substitute doubles.
type Validator interface {
	Validate(ctx context.Context, in validator.Input) (domain.ValidationResult, error)
}

// TaskGenerator derives the registration checklist for a validated idea.
type TaskGenerator interface {
	Generate(ctx context.Context, ownerID, ideaID, ideaTitle string) ([]domain.RegistrationTask, error)
}

// Observers are fired exactly once per successful validation/generation
// cycle, never on failure.
type Observers struct {
	OnIdeaValidated  func(domain.ValidationResult)
	OnTasksGenerated func([]domain.RegistrationTask)
}

// Options configure an Orchestrator. Validator and Generator default to the
// real engine and catalog generator when nil.
type Options struct {
	OwnerID   string
	DB        *sql.DB
	Config    *config.Config
	Validator Validator
	Generator TaskGenerator
	Presenter spotlight.Presenter
	Observers Observers
	Now       func() time.Time
}

// Orchestrator sequences load-draft, auto-save, validate, generate-tasks for
// one owner. All operations are serialized by a per-instance mutex: two
// overlapping calls for the same owner never race on the validation history
// or the task batch.
type Orchestrator struct {
	ownerID   string
	db        *sql.DB
	repo      repo.Repo
	events    events.Writer
	cfg       *config.Config
	validator Validator
	generator TaskGenerator
	presenter spotlight.Presenter
	observers Observers
	now       func() time.Time

	mu            sync.Mutex
	stage         Stage
	mode          spotlight.Mode
	autoValidated bool
	result        *domain.ValidationResult
	tasks         []domain.RegistrationTask
	lastErr       error
}

func New(opts Options) *Orchestrator {
	r := repo.Repo{DB: opts.DB}
	o := &Orchestrator{
		ownerID:   opts.OwnerID,
		db:        opts.DB,
		repo:      r,
		events:    events.Writer{DB: opts.DB, Now: opts.Now},
		cfg:       opts.Config,
		validator: opts.Validator,
		generator: opts.Generator,
		presenter: opts.Presenter,
		observers: opts.Observers,
		now:       opts.Now,
		stage:     StageIdle,
		mode:      spotlight.ModeValidation,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.validator == nil {
		eng := validator.New(r, opts.Config.Pipeline.ValidationDelay.Std())
		eng.Now = o.now
		o.validator = eng
	}
	if o.generator == nil {
		gen := taskgen.New(opts.Config, opts.Config.Pipeline.GenerationDelay.Std())
		gen.Now = o.now
		o.generator = gen
	}
	return o
}

func (o *Orchestrator) OwnerID() string { return o.ownerID }

func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// State snapshots the spotlight view: current mode and stage, the latest
// result, the task batch, and its progress.
func (o *Orchestrator) State(ctx context.Context) (spotlight.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked(ctx)
}

func (o *Orchestrator) stateLocked(ctx context.Context) (spotlight.State, error) {
	tasks, err := o.repo.ListTasks(ctx, o.ownerID)
	if err != nil {
		return spotlight.State{}, err
	}
	return spotlight.State{
		Mode:             o.mode,
		Stage:            string(o.stage),
		ValidationResult: o.result,
		Tasks:            tasks,
		Progress:         tracker.Progress(tasks),
	}, nil
}

// SetMode switches the spotlight to connections/actions (or back). Those
// modes come from UI navigation, not from the pipeline, and may arrive at
// any time.
func (o *Orchestrator) SetMode(ctx context.Context, mode spotlight.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid spotlight mode %q", mode)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
	return o.renderLocked(ctx)
}

// SaveDraft upserts an idea draft by (owner, title). A pre-existing title
// returns the stored record with created=false instead of erroring or
// duplicating.
func (o *Orchestrator) SaveDraft(ctx context.Context, title, description string) (domain.Idea, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.saveDraftLocked(ctx, title, description)
}

func (o *Orchestrator) saveDraftLocked(ctx context.Context, title, description string) (domain.Idea, bool, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Idea{}, false, errors.New("title is required")
	}
	existing, err := o.repo.GetIdeaByTitle(ctx, o.ownerID, title)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Idea{}, false, err
	}
	now := o.now().UTC().Format(time.RFC3339)
	idea := domain.Idea{
		ID:             uuid.New().String(),
		OwnerID:        o.ownerID,
		Title:          title,
		Description:    description,
		Status:         domain.IdeaStatusDraft,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Idea{}, false, err
	}
	defer tx.Rollback()
	if err := o.repo.InsertIdea(ctx, tx, idea); err != nil {
		return domain.Idea{}, false, fmt.Errorf("insert idea: %w", err)
	}
	if err := o.events.Append(ctx, tx, "idea.created", o.ownerID, "idea", idea.ID, events.EventPayload{
		"title": idea.Title,
	}); err != nil {
		return domain.Idea{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Idea{}, false, err
	}
	return idea, true, nil
}

// LoadOnboardingIdea reads the owner's onboarding record and, when it names
// an idea, saves the draft and kicks off auto-validation. Missing or
// non-idea records are a no-op. The automatic trigger fires at most once per
// orchestrator instance; manual ValidateIdea calls are unaffected.
func (o *Orchestrator) LoadOnboardingIdea(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.repo.GetOnboardingRecord(ctx, o.ownerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Path != "idea" || rec.IdeaTitle == "" || rec.IdeaDescription == "" {
		return nil
	}
	if err := o.setStageLocked(ctx, StageDraftLoaded); err != nil {
		return err
	}
	idea, _, err := o.saveDraftLocked(ctx, rec.IdeaTitle, rec.IdeaDescription)
	if err != nil {
		return &PipelineError{Stage: StageDraftLoaded, Err: err}
	}
	if err := o.setStageLocked(ctx, StageAutoSaved); err != nil {
		return err
	}
	if !o.cfg.Pipeline.AutoValidate || o.autoValidated {
		return nil
	}
	o.autoValidated = true
	if err := wait(ctx, o.cfg.Pipeline.GraceDelay.Std()); err != nil {
		return err
	}
	_, _, err = o.runLocked(ctx, idea)
	return err
}

// ValidateIdea runs the validate and generate-tasks steps for the idea. It
// may be called any number of times; each run appends a fresh result to the
// history.
func (o *Orchestrator) ValidateIdea(ctx context.Context, idea domain.Idea) (domain.ValidationResult, []domain.RegistrationTask, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runLocked(ctx, idea)
}

// RetryTaskGeneration re-runs only the task step after a partial failure.
func (o *Orchestrator) RetryTaskGeneration(ctx context.Context) ([]domain.RegistrationTask, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stage != StageValidatedTasksPending || o.result == nil {
		return nil, fmt.Errorf("no pending task generation for owner %s", o.ownerID)
	}
	return o.generateLocked(ctx, *o.result)
}

func (o *Orchestrator) runLocked(ctx context.Context, idea domain.Idea) (domain.ValidationResult, []domain.RegistrationTask, error) {
	if err := o.setStageLocked(ctx, StageValidating); err != nil {
		return domain.ValidationResult{}, nil, err
	}
	o.mode = spotlight.ModeValidation
	if err := o.renderLocked(ctx); err != nil {
		return domain.ValidationResult{}, nil, err
	}
	if err := o.setIdeaStatusLocked(ctx, idea.ID, domain.IdeaStatusValidating); err != nil {
		return domain.ValidationResult{}, nil, err
	}
	res, err := o.validator.Validate(ctx, validator.Input{
		OwnerID:     o.ownerID,
		IdeaID:      idea.ID,
		Title:       idea.Title,
		Description: idea.Description,
	})
	if err != nil {
		o.lastErr = err
		log.Printf("pipeline: validation failed for owner %s: %v", o.ownerID, err)
		o.logEventLocked(ctx, "pipeline.failed", "idea", idea.ID, events.EventPayload{
			"stage": string(StageValidating),
			"error": err.Error(),
		})
		return domain.ValidationResult{}, nil, &PipelineError{Stage: StageValidating, Err: err}
	}
	o.result = &res
	if err := o.setIdeaStatusLocked(ctx, idea.ID, domain.IdeaStatusValidated); err != nil {
		return res, nil, err
	}
	o.logEventLocked(ctx, "idea.validated", "idea", idea.ID, events.EventPayload{
		"result_id":     res.ID,
		"overall_score": res.OverallScore,
	})
	if err := o.setStageLocked(ctx, StageValidated); err != nil {
		return res, nil, err
	}
	if err := o.renderLocked(ctx); err != nil {
		return res, nil, err
	}
	if o.observers.OnIdeaValidated != nil {
		o.observers.OnIdeaValidated(res)
	}
	if err := wait(ctx, o.cfg.Pipeline.GenerationDelay.Std()); err != nil {
		return res, nil, o.markTasksPending(ctx, res, err)
	}
	tasks, err := o.generateLocked(ctx, res)
	if err != nil {
		return res, nil, err
	}
	return res, tasks, nil
}

func (o *Orchestrator) generateLocked(ctx context.Context, res domain.ValidationResult) ([]domain.RegistrationTask, error) {
	if err := o.setStageLocked(ctx, StageGeneratingTasks); err != nil {
		return nil, err
	}
	tasks, err := o.generator.Generate(ctx, o.ownerID, res.IdeaID, res.IdeaTitle)
	if err != nil {
		return nil, o.markTasksPending(ctx, res, err)
	}
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := o.repo.ReplaceTaskBatch(ctx, tx, o.ownerID, tasks); err != nil {
		return nil, o.markTasksPending(ctx, res, fmt.Errorf("store task batch: %w", err))
	}
	if err := o.events.Append(ctx, tx, "tasks.generated", o.ownerID, "idea", res.IdeaID, events.EventPayload{
		"count":     len(tasks),
		"result_id": res.ID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	o.tasks = tasks
	o.lastErr = nil
	if err := o.setStageLocked(ctx, StageTasksReady); err != nil {
		return nil, err
	}
	o.mode = spotlight.ModeTasks
	if err := o.renderLocked(ctx); err != nil {
		return nil, err
	}
	if o.observers.OnTasksGenerated != nil {
		o.observers.OnTasksGenerated(tasks)
	}
	return tasks, nil
}

// markTasksPending records the validated-but-no-tasks state. The validation
// result stays stored; only the task step is retried later.
func (o *Orchestrator) markTasksPending(ctx context.Context, res domain.ValidationResult, cause error) error {
	o.lastErr = cause
	log.Printf("pipeline: task generation failed for owner %s: %v", o.ownerID, cause)
	if err := o.setStageLocked(ctx, StageValidatedTasksPending); err != nil {
		return err
	}
	o.logEventLocked(ctx, "pipeline.failed", "idea", res.IdeaID, events.EventPayload{
		"stage": string(StageGeneratingTasks),
		"error": cause.Error(),
	})
	return &PipelineError{Stage: StageGeneratingTasks, Err: cause}
}

func (o *Orchestrator) setIdeaStatusLocked(ctx context.Context, ideaID, status string) error {
	now := o.now().UTC().Format(time.RFC3339)
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := o.repo.UpdateIdeaStatus(ctx, tx, ideaID, status, now); err != nil {
		return fmt.Errorf("update idea status: %w", err)
	}
	if err := o.events.Append(ctx, tx, "idea.updated", o.ownerID, "idea", ideaID, events.EventPayload{
		"status": status,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (o *Orchestrator) setStageLocked(ctx context.Context, next Stage) error {
	prev := o.stage
	o.stage = next
	if prev == next {
		return nil
	}
	return o.logEventLocked(ctx, "pipeline.stage.changed", "pipeline", o.ownerID, events.EventPayload{
		"from": string(prev),
		"to":   string(next),
	})
}

func (o *Orchestrator) logEventLocked(ctx context.Context, evtType, entityKind, entityID string, payload events.EventPayload) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := o.events.Append(ctx, tx, evtType, o.ownerID, entityKind, entityID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (o *Orchestrator) renderLocked(ctx context.Context) error {
	if o.presenter == nil {
		return nil
	}
	state, err := o.stateLocked(ctx)
	if err != nil {
		return err
	}
	o.presenter.Render(state)
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
