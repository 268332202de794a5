package tracker

import (
	"context"
	"database/sql"
	"math"

	"launchpath/internal/domain"
	"launchpath/internal/events"
	"launchpath/internal/repo"
)

// Tracker owns completion state over a generated task batch.
type Tracker struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
}

func New(db *sql.DB) Tracker {
	return Tracker{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
	}
}

// Toggle sets a task's completed flag. Unknown ids return repo.ErrNotFound
// so callers can decide whether to ignore it. Toggling to the current value
// is a no-op: the stored state is untouched and no event is appended.
func (t Tracker) Toggle(ctx context.Context, ownerID, taskID string, completed bool) (domain.RegistrationTask, error) {
	task, err := t.Repo.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return domain.RegistrationTask{}, err
	}
	if task.Completed == completed {
		return task, nil
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RegistrationTask{}, err
	}
	defer tx.Rollback()
	if err := t.Repo.SetTaskCompleted(ctx, tx, ownerID, taskID, completed); err != nil {
		return domain.RegistrationTask{}, err
	}
	if err := t.Events.Append(ctx, tx, "task.toggled", ownerID, "task", taskID, events.EventPayload{
		"completed": completed,
	}); err != nil {
		return domain.RegistrationTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RegistrationTask{}, err
	}
	task.Completed = completed
	return task, nil
}

// Progress returns the completion percentage, rounded to the nearest whole
// number. Empty lists report 0.
func Progress(tasks []domain.RegistrationTask) int {
	if len(tasks) == 0 {
		return 0
	}
	completed := 0
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(tasks))))
}
