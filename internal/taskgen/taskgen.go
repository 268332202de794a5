package taskgen

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"launchpath/internal/config"
	"launchpath/internal/domain"
)

// Generator turns a validated idea title into the ordered registration-task
// checklist. The catalog is fixed configuration: every non-empty title gets
// the same list today. Callers must not assume the content varies by idea.
type Generator struct {
	Catalog []config.CatalogTask
	Delay   time.Duration
	Now     func() time.Time
}

func New(cfg *config.Config, delay time.Duration) Generator {
	return Generator{
		Catalog: cfg.Tasks.Catalog,
		Delay:   delay,
		Now:     time.Now,
	}
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Generate returns the task batch for an idea after the configured latency.
// Tasks come back in catalog order with completed=false.
func (g Generator) Generate(ctx context.Context, ownerID, ideaID, ideaTitle string) ([]domain.RegistrationTask, error) {
	if strings.TrimSpace(ideaTitle) == "" {
		return nil, errors.New("idea title is required")
	}
	if len(g.Catalog) == 0 {
		return nil, errors.New("task catalog is empty")
	}
	if err := wait(ctx, g.Delay); err != nil {
		return nil, err
	}
	now := g.now().UTC().Format(time.RFC3339)
	tasks := make([]domain.RegistrationTask, 0, len(g.Catalog))
	for i, entry := range g.Catalog {
		tasks = append(tasks, domain.RegistrationTask{
			ID:            uuid.New().String(),
			OwnerID:       ownerID,
			IdeaID:        ideaID,
			Title:         entry.Title,
			Description:   entry.Description,
			Category:      entry.Category,
			Priority:      entry.Priority,
			EstimatedTime: entry.EstimatedTime,
			Completed:     false,
			Resources:     entry.Resources,
			Position:      i,
			CreatedAt:     now,
		})
	}
	return tasks, nil
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
