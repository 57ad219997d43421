package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/training"
)

const submissionColumns = `id, student_id, phase_id, form_number, status, data, submitted_at, created_at, updated_at`

type submissionRow struct {
	ID          string       `db:"id"`
	StudentID   string       `db:"student_id"`
	PhaseID     string       `db:"phase_id"`
	FormNumber  int          `db:"form_number"`
	Status      string       `db:"status"`
	Data        string       `db:"data"`
	SubmittedAt sql.NullTime `db:"submitted_at"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

type submissionRepository struct {
	repository
}

func NewSubmissionRepository(exec core.DBExecutor) training.SubmissionRepository {
	return &submissionRepository{repository{exec: exec}}
}

func (repo submissionRepository) toRow(sub training.FormSubmission) submissionRow {
	data := string(sub.Data)
	if data == "" {
		data = "{}"
	}
	return submissionRow{
		ID:          sub.ID,
		StudentID:   sub.StudentID,
		PhaseID:     string(sub.PhaseID),
		FormNumber:  sub.FormNumber,
		Status:      string(sub.Status),
		Data:        data,
		SubmittedAt: sql.NullTime{Time: sub.SubmittedAt.UTC(), Valid: !sub.SubmittedAt.IsZero()},
		CreatedAt:   sub.CreatedAt.UTC(),
		UpdatedAt:   sub.UpdatedAt.UTC(),
	}
}

func (repo submissionRepository) fromRow(row submissionRow) training.FormSubmission {
	sub := training.FormSubmission{
		ID:         row.ID,
		StudentID:  row.StudentID,
		PhaseID:    training.PhaseID(row.PhaseID),
		FormNumber: row.FormNumber,
		Status:     training.SubmissionStatus(row.Status),
		Data:       json.RawMessage(row.Data),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.SubmittedAt.Valid {
		sub.SubmittedAt = row.SubmittedAt.Time.UTC()
	}
	return sub
}

func (repo submissionRepository) UpsertSubmission(ctx context.Context, sub training.FormSubmission, exec ...core.DBExecutor) (training.FormSubmission, error) {
	sub.ID = uuid.New().String()
	row := repo.toRow(sub)

	exe := repo.getExec(exec)

	// created_at and id are kept when the row already exists
	q := `INSERT INTO form_submission (` + submissionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, phase_id, form_number, status) DO UPDATE
		SET data = excluded.data, submitted_at = excluded.submitted_at, updated_at = excluded.updated_at`
	if _, err := execAffected(ctx, exe, q,
		row.ID, row.StudentID, row.PhaseID, row.FormNumber, row.Status, row.Data,
		row.SubmittedAt, row.CreatedAt, row.UpdatedAt,
	); err != nil {
		return training.FormSubmission{}, errors.Wrap(err, "upserting submission")
	}

	var saved submissionRow
	q = `SELECT ` + submissionColumns + ` FROM form_submission
		WHERE student_id = ? AND phase_id = ? AND form_number = ? AND status = ?`
	if err := getOne(ctx, exe, &saved, q, row.StudentID, row.PhaseID, row.FormNumber, row.Status); err != nil {
		return training.FormSubmission{}, errors.Wrap(err, "fetching upserted submission")
	}
	return repo.fromRow(saved), nil
}

func (repo submissionRepository) DeleteSubmission(
	ctx context.Context,
	studentID string,
	phaseID training.PhaseID,
	formNumber int,
	status training.SubmissionStatus,
	exec ...core.DBExecutor,
) error {
	q := `DELETE FROM form_submission WHERE student_id = ? AND phase_id = ? AND form_number = ? AND status = ?`
	cnt, err := execAffected(ctx, repo.getExec(exec), q, studentID, string(phaseID), formNumber, string(status))
	if err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	if cnt == 0 {
		return training.ErrNotFound
	}
	return nil
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, filter training.QueryFilter, exec ...core.DBExecutor) ([]training.FormSubmission, error) {
	var where whereClause
	if !filter.IsEmpty() {
		if filter.StudentIDs != nil {
			if len(filter.StudentIDs) == 0 {
				return []training.FormSubmission{}, nil
			}
			where.add("student_id IN (?)", filter.StudentIDs)
		}
		if filter.PhaseID != "" {
			where.add("phase_id = ?", string(filter.PhaseID))
		}
		if filter.Status != "" {
			where.add("status = ?", string(filter.Status))
		}
		if filter.FormNumber > 0 {
			where.add("form_number = ?", filter.FormNumber)
		}
	}

	q := `SELECT ` + submissionColumns + ` FROM form_submission` + where.String() +
		` ORDER BY student_id, phase_id, form_number, status`

	var rows []submissionRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]training.FormSubmission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, repo.fromRow(row))
	}
	return subs, nil
}

func (repo submissionRepository) DeleteStudentSubmissions(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error) {
	cnt, err := execAffected(ctx, repo.getExec(exec), `DELETE FROM form_submission WHERE student_id = ?`, studentID)
	return cnt, errors.Wrap(err, "deleting student submissions")
}
