package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"launchpath/internal/domain"
)

// InsertValidationResult appends one result to the owner's history. Results
// are never updated or deleted.
func (r Repo) InsertValidationResult(ctx context.Context, v domain.ValidationResult) (domain.ValidationResult, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	defer tx.Rollback()
	created, err := r.InsertValidationResultTx(ctx, tx, v)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ValidationResult{}, err
	}
	return created, nil
}

func (r Repo) InsertValidationResultTx(ctx context.Context, tx *sql.Tx, v domain.ValidationResult) (domain.ValidationResult, error) {
	strengths, err := marshalSlice(v.Strengths)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	challenges, err := marshalSlice(v.Challenges)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	recommendations, err := marshalSlice(v.Recommendations)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	nextSteps, err := marshalSlice(v.NextSteps)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO validation_results(id,owner_id,idea_id,idea_title,idea_description,overall_score,market_potential_score,feasibility_score,competitive_landscape_score,summary,strengths_json,challenges_json,recommendations_json,next_steps_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.OwnerID, v.IdeaID, v.IdeaTitle, v.IdeaDescription,
		v.OverallScore, v.MarketPotentialScore, v.FeasibilityScore, v.CompetitiveLandscapeScore,
		nullable(v.Summary), strengths, challenges, recommendations, nextSteps, v.CreatedAt)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return v, nil
}

func (r Repo) GetValidationResult(ctx context.Context, ownerID, id string) (domain.ValidationResult, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,idea_id,idea_title,idea_description,overall_score,market_potential_score,feasibility_score,competitive_landscape_score,summary,strengths_json,challenges_json,recommendations_json,next_steps_json,created_at
FROM validation_results WHERE owner_id=? AND id=?`, ownerID, id)
	v, err := scanValidationResult(row.Scan)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	return v, err
}

// ListValidationResults returns the owner's history, oldest first.
func (r Repo) ListValidationResults(ctx context.Context, ownerID string) ([]domain.ValidationResult, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner_id,idea_id,idea_title,idea_description,overall_score,market_potential_score,feasibility_score,competitive_landscape_score,summary,strengths_json,challenges_json,recommendations_json,next_steps_json,created_at
FROM validation_results WHERE owner_id=? ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ValidationResult
	for rows.Next() {
		v, err := scanValidationResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// LatestValidationResult returns the owner's newest result, the "current
// result" pointer the spotlight renders.
func (r Repo) LatestValidationResult(ctx context.Context, ownerID string) (domain.ValidationResult, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,idea_id,idea_title,idea_description,overall_score,market_potential_score,feasibility_score,competitive_landscape_score,summary,strengths_json,challenges_json,recommendations_json,next_steps_json,created_at
FROM validation_results WHERE owner_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, ownerID)
	v, err := scanValidationResult(row.Scan)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	return v, err
}

func scanValidationResult(scan func(dest ...any) error) (domain.ValidationResult, error) {
	var v domain.ValidationResult
	var summary, strengths, challenges, recommendations, nextSteps sql.NullString
	err := scan(&v.ID, &v.OwnerID, &v.IdeaID, &v.IdeaTitle, &v.IdeaDescription,
		&v.OverallScore, &v.MarketPotentialScore, &v.FeasibilityScore, &v.CompetitiveLandscapeScore,
		&summary, &strengths, &challenges, &recommendations, &nextSteps, &v.CreatedAt)
	if err != nil {
		return v, err
	}
	if summary.Valid {
		v.Summary = summary.String
	}
	v.Strengths = unmarshalSlice(strengths)
	v.Challenges = unmarshalSlice(challenges)
	v.Recommendations = unmarshalSlice(recommendations)
	v.NextSteps = unmarshalSlice(nextSteps)
	return v, nil
}

func marshalSlice(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalSlice(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw.String), &out)
	return out
}
