package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/training"
)

type completionRow struct {
	StudentID   string         `db:"student_id"`
	PhaseID     string         `db:"phase_id"`
	Completed   bool           `db:"completed"`
	SignedOff   bool           `db:"signed_off"`
	SignedOffBy sql.NullString `db:"signed_off_by"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type completionRepository struct {
	repository
}

func NewCompletionRepository(exec core.DBExecutor) training.CompletionRepository {
	return &completionRepository{repository{exec: exec}}
}

func (repo completionRepository) QueryCompletions(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]training.PhaseCompletion, error) {
	if len(studentIDs) == 0 {
		return []training.PhaseCompletion{}, nil
	}

	q := `SELECT student_id, phase_id, completed, signed_off, signed_off_by, updated_at
		FROM phase_completion WHERE student_id IN (?) ORDER BY student_id, phase_id`

	var rows []completionRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, studentIDs); err != nil {
		return nil, errors.Wrap(err, "querying completions")
	}
	comps := make([]training.PhaseCompletion, 0, len(rows))
	for _, row := range rows {
		comps = append(comps, training.PhaseCompletion{
			StudentID:   row.StudentID,
			PhaseID:     training.PhaseID(row.PhaseID),
			Completed:   row.Completed,
			SignedOff:   row.SignedOff,
			SignedOffBy: row.SignedOffBy.String,
			UpdatedAt:   row.UpdatedAt.UTC(),
		})
	}
	return comps, nil
}

func (repo completionRepository) UpsertCompletion(ctx context.Context, pc training.PhaseCompletion, exec ...core.DBExecutor) error {
	q := `INSERT INTO phase_completion (student_id, phase_id, completed, signed_off, signed_off_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, phase_id) DO UPDATE
		SET completed = excluded.completed, signed_off = excluded.signed_off,
			signed_off_by = excluded.signed_off_by, updated_at = excluded.updated_at`

	_, err := execAffected(ctx, repo.getExec(exec), q,
		pc.StudentID, string(pc.PhaseID), pc.Completed, pc.SignedOff, nullString(pc.SignedOffBy), pc.UpdatedAt.UTC(),
	)
	return errors.Wrap(err, "upserting completion")
}

func (repo completionRepository) DeleteStudentCompletions(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error) {
	cnt, err := execAffected(ctx, repo.getExec(exec), `DELETE FROM phase_completion WHERE student_id = ?`, studentID)
	return cnt, errors.Wrap(err, "deleting student completions")
}
