package repo

import (
	"context"
	"database/sql"
	"errors"

	"launchpath/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertIdea(ctx context.Context, tx *sql.Tx, idea domain.Idea) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ideas(id,owner_id,title,description,status,created_at,last_modified_at) VALUES (?,?,?,?,?,?,?)`,
		idea.ID, idea.OwnerID, idea.Title, idea.Description, idea.Status, idea.CreatedAt, idea.LastModifiedAt)
	return err
}

func (r Repo) GetIdea(ctx context.Context, ownerID, id string) (domain.Idea, error) {
	var idea domain.Idea
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,title,description,status,created_at,last_modified_at FROM ideas WHERE owner_id=? AND id=?`, ownerID, id).
		Scan(&idea.ID, &idea.OwnerID, &idea.Title, &idea.Description, &idea.Status, &idea.CreatedAt, &idea.LastModifiedAt)
	if err == sql.ErrNoRows {
		return idea, ErrNotFound
	}
	return idea, err
}

// GetIdeaByTitle resolves the upsert key (owner_id, title).
func (r Repo) GetIdeaByTitle(ctx context.Context, ownerID, title string) (domain.Idea, error) {
	var idea domain.Idea
	err := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,title,description,status,created_at,last_modified_at FROM ideas WHERE owner_id=? AND title=?`, ownerID, title).
		Scan(&idea.ID, &idea.OwnerID, &idea.Title, &idea.Description, &idea.Status, &idea.CreatedAt, &idea.LastModifiedAt)
	if err == sql.ErrNoRows {
		return idea, ErrNotFound
	}
	return idea, err
}

// ListIdeas returns the owner's ideas in insertion order so the UI stays
// deterministic across reloads.
func (r Repo) ListIdeas(ctx context.Context, ownerID string) ([]domain.Idea, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,title,description,status,created_at,last_modified_at FROM ideas WHERE owner_id=? ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Idea
	for rows.Next() {
		var idea domain.Idea
		if err := rows.Scan(&idea.ID, &idea.OwnerID, &idea.Title, &idea.Description, &idea.Status, &idea.CreatedAt, &idea.LastModifiedAt); err != nil {
			return nil, err
		}
		res = append(res, idea)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIdeaStatus(ctx context.Context, tx *sql.Tx, id, status, modifiedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET status=?, last_modified_at=? WHERE id=?`, status, modifiedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertOnboardingRecord(ctx context.Context, rec domain.OnboardingRecord) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO onboarding_records(owner_id,path,idea_title,idea_description,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(owner_id) DO UPDATE SET path=excluded.path, idea_title=excluded.idea_title, idea_description=excluded.idea_description, updated_at=excluded.updated_at`,
		rec.OwnerID, rec.Path, nullable(rec.IdeaTitle), nullable(rec.IdeaDescription), rec.UpdatedAt)
	return err
}

func (r Repo) GetOnboardingRecord(ctx context.Context, ownerID string) (domain.OnboardingRecord, error) {
	var rec domain.OnboardingRecord
	var title, desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT owner_id,path,idea_title,idea_description,updated_at FROM onboarding_records WHERE owner_id=?`, ownerID).
		Scan(&rec.OwnerID, &rec.Path, &title, &desc, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if title.Valid {
		rec.IdeaTitle = title.String
	}
	if desc.Valid {
		rec.IdeaDescription = desc.String
	}
	return rec, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, ownerID, evtType string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, ownerID, evtType)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, ownerID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if ownerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, ownerID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := `SELECT id,ts,type,owner_id,entity_kind,entity_id,payload_json FROM events WHERE ` + joinAnd(clauses) + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return r.scanEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, ownerID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if ownerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, ownerID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := `SELECT id,ts,type,owner_id,entity_kind,entity_id,payload_json FROM events WHERE ` + joinAnd(clauses) + ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	return r.scanEvents(ctx, query, args...)
}

// LatestEventID returns the highest event id for the owner, or 0 when the
// log is empty. Pass "" for the whole log.
func (r Repo) LatestEventID(ctx context.Context, ownerID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id=?`
		args = append(args, ownerID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

func (r Repo) scanEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var ownerID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &ownerID, &e.EntityKind, &entityID, &payload); err != nil {
			return nil, err
		}
		if ownerID.Valid {
			e.OwnerID = ownerID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
