package validator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"launchpath/internal/domain"
	"launchpath/internal/repo"
)

// Input is the frozen idea snapshot a validation run scores.
type Input struct {
	OwnerID     string
	IdeaID      string
	Title       string
	Description string
}

// Engine produces a scored ValidationResult for an idea after a latency
// period and appends it to the owner's history. The scoring itself is a
// placeholder for a future evaluator; the contract to preserve is the input
// shape, the result shape, and the fact that callers wait for resolution.
type Engine struct {
	Repo  repo.Repo
	Delay time.Duration
	Now   func() time.Time
	Rand  *rand.Rand
}

func New(r repo.Repo, delay time.Duration) *Engine {
	return &Engine{
		Repo:  r,
		Delay: delay,
		Now:   time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) intn(n int) int {
	if e.Rand != nil {
		return e.Rand.Intn(n)
	}
	return rand.Intn(n)
}

// score returns a placeholder score in [0,100]. Each score is drawn
// independently; the overall score is deliberately not an average of the
// sub-scores.
func (e *Engine) score() int {
	return 55 + e.intn(41)
}

// Validate scores the idea and appends the result to the owner's validation
// history. It blocks for the configured delay (honoring ctx) before
// resolving; callers must not depend on the exact duration.
func (e *Engine) Validate(ctx context.Context, in Input) (domain.ValidationResult, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.ValidationResult{}, errors.New("idea title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return domain.ValidationResult{}, errors.New("idea description is required")
	}
	if in.OwnerID == "" {
		return domain.ValidationResult{}, errors.New("owner is required")
	}
	if err := wait(ctx, e.Delay); err != nil {
		return domain.ValidationResult{}, err
	}
	res := domain.ValidationResult{
		ID:                        uuid.New().String(),
		OwnerID:                   in.OwnerID,
		IdeaID:                    in.IdeaID,
		IdeaTitle:                 in.Title,
		IdeaDescription:           in.Description,
		OverallScore:              e.score(),
		MarketPotentialScore:      e.score(),
		FeasibilityScore:          e.score(),
		CompetitiveLandscapeScore: e.score(),
		Summary:                   fmt.Sprintf("%s shows promise as a business concept. The assessment below highlights where to focus first.", in.Title),
		Strengths: []string{
			"Clear problem statement",
			"Addressable early-adopter segment",
			"Low upfront capital requirements",
		},
		Challenges: []string{
			"Crowded competitive landscape",
			"Customer acquisition costs are unproven",
		},
		Recommendations: []string{
			"Interview ten potential customers before building",
			"Identify one differentiator competitors cannot copy quickly",
		},
		NextSteps: []string{
			"Complete the registration checklist",
			"Draft a one-page positioning statement",
		},
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if _, err := e.Repo.InsertValidationResult(ctx, res); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("append validation history: %w", err)
	}
	return res, nil
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
