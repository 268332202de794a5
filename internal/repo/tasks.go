package repo

import (
	"context"
	"database/sql"

	"launchpath/internal/domain"
)

// ReplaceTaskBatch stores a freshly generated batch for the owner, replacing
// any previous batch. Within a batch tasks keep their generation order via
// the position column.
func (r Repo) ReplaceTaskBatch(ctx context.Context, tx *sql.Tx, ownerID string, tasks []domain.RegistrationTask) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_tasks WHERE owner_id=?`, ownerID); err != nil {
		return err
	}
	for _, t := range tasks {
		if err := r.InsertTaskTx(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.RegistrationTask) error {
	resources, err := marshalSlice(t.Resources)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO registration_tasks(id,owner_id,idea_id,title,description,category,priority,estimated_time,completed,due_date,resources_json,position,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OwnerID, t.IdeaID, t.Title, nullable(t.Description), t.Category, t.Priority,
		nullable(t.EstimatedTime), boolToInt(t.Completed), nullableStringPtr(t.DueDate), resources, t.Position, t.CreatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, ownerID, id string) (domain.RegistrationTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,idea_id,title,description,category,priority,estimated_time,completed,due_date,resources_json,position,created_at
FROM registration_tasks WHERE owner_id=? AND id=?`, ownerID, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// ListTasks returns the owner's tasks in generation order.
func (r Repo) ListTasks(ctx context.Context, ownerID string) ([]domain.RegistrationTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,idea_id,title,description,category,priority,estimated_time,completed,due_date,resources_json,position,created_at
FROM registration_tasks WHERE owner_id=? ORDER BY position ASC, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RegistrationTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// SetTaskCompleted flips the completed flag. ErrNotFound for unknown ids so
// callers can decide whether to ignore it.
func (r Repo) SetTaskCompleted(ctx context.Context, tx *sql.Tx, ownerID, id string, completed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE registration_tasks SET completed=? WHERE owner_id=? AND id=?`,
		boolToInt(completed), ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(scan func(dest ...any) error) (domain.RegistrationTask, error) {
	var t domain.RegistrationTask
	var description, estimatedTime, dueDate, resources sql.NullString
	var completed int
	err := scan(&t.ID, &t.OwnerID, &t.IdeaID, &t.Title, &description, &t.Category, &t.Priority,
		&estimatedTime, &completed, &dueDate, &resources, &t.Position, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if estimatedTime.Valid {
		t.EstimatedTime = estimatedTime.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	t.Resources = unmarshalSlice(resources)
	t.Completed = completed != 0
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
