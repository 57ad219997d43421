package testutil

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/training"
	"github.com/fieldtrack/fieldtrack/core/user"
	"github.com/fieldtrack/fieldtrack/storage/database"
)

// PrepareDB opens a migrated sqlite database in a temp dir, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(context.Background(), db, conf.Database.Engine); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateSubmission stores a submission directly, bypassing the accessibility gate (eg. seeded data).
func CreateSubmission(
	t *testing.T,
	repo training.SubmissionRepository,
	studentID string,
	phaseID training.PhaseID,
	formNumber int,
	status training.SubmissionStatus,
	data ...map[string]interface{},
) training.FormSubmission {
	t.Helper()

	payload := json.RawMessage("{}")
	if len(data) > 0 {
		raw, err := json.Marshal(data[0])
		if err != nil {
			t.Fatalf("CreateSubmission() failed: %v", err)
		}
		payload = raw
	}

	now := time.Now().UTC()
	sub := training.FormSubmission{
		StudentID:  studentID,
		PhaseID:    phaseID,
		FormNumber: formNumber,
		Status:     status,
		Data:       payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == training.StatusSubmitted {
		sub.SubmittedAt = now
	}
	sub, err := repo.UpsertSubmission(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return sub
}

// SubmitPhase submits every form of the phase.
func SubmitPhase(t *testing.T, repo training.SubmissionRepository, studentID string, ph training.Phase) {
	t.Helper()
	for form := 1; form <= ph.Total; form++ {
		CreateSubmission(t, repo, studentID, ph.ID, form, training.StatusSubmitted)
	}
}
