package training_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/notify"
	"github.com/fieldtrack/fieldtrack/core/training"
	"github.com/fieldtrack/fieldtrack/core/user"
	sqlxrepos "github.com/fieldtrack/fieldtrack/storage/database/sqlx"
	"github.com/fieldtrack/fieldtrack/tests"
)

type fixture struct {
	svc      training.Service
	program  *training.Program
	subRepo  training.SubmissionRepository
	compRepo training.CompletionRepository
	broker   *notify.Broker
	student  user.User
	coord    user.User
}

func setup(t *testing.T) fixture {
	t.Helper()

	program, err := training.DefaultProgram()
	require.NoError(t, err)

	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	f := fixture{
		program:  program,
		subRepo:  sqlxrepos.NewSubmissionRepository(db),
		compRepo: sqlxrepos.NewCompletionRepository(db),
		broker:   notify.NewBroker(16),
		student:  testutil.CreateUser(t, usrRepo, "Jane Doe", "janedoe", "", "", []string{user.RoleStudent}, true),
		coord:    testutil.CreateUser(t, usrRepo, "Carl Coord", "carlcoord", "", "", []string{user.RoleCoordinator}, true),
	}
	t.Cleanup(f.broker.Close)
	f.svc = training.NewService(program, db, f.subRepo, f.compRepo, f.broker)
	return f
}

func (f fixture) phase(t *testing.T, id training.PhaseID) training.Phase {
	ph, ok := f.program.Phase(id)
	require.True(t, ok, id)
	return ph
}

func submit(status training.SubmissionStatus, data string) training.NewSubmission {
	return training.NewSubmission{Status: status, Data: json.RawMessage(data)}
}

func TestService_Save(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	events, cancel := f.broker.Subscribe(f.student.ID)
	defer cancel()

	tests := []struct {
		name    string
		phaseID training.PhaseID
		form    int
		ns      training.NewSubmission
		wantErr error
	}{
		{name: "unknown phase", phaseID: "nope", form: 1, ns: submit(training.StatusDraft, "{}"), wantErr: training.ErrPhaseNotFound},
		{name: "locked phase", phaseID: "observation", form: 1, ns: submit(training.StatusDraft, "{}"), wantErr: training.ErrPhaseLocked},
		{name: "addendum phase is always open", phaseID: "instructional-2", form: 1, ns: submit(training.StatusSubmitted, `{"a": 1}`)},
		{name: "draft", phaseID: "orientation", form: 1, ns: submit(training.StatusDraft, `{"agreed": false}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := f.svc.Save(ctx, f.student.ID, tt.phaseID, tt.form, tt.ns)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ns.Status, sub.Status)
			assert.JSONEq(t, string(tt.ns.Data), string(sub.Data))
		})
	}

	t.Run("form number out of range", func(t *testing.T) {
		for _, form := range []int{0, 2} {
			_, err := f.svc.Save(ctx, f.student.ID, "orientation", form, submit(training.StatusDraft, "{}"))
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "%v", err)
			assert.Equal(t, "form_number", vErr.Fields[0].Field)
		}
	})

	t.Run("submit replaces the draft and unlocks dependents", func(t *testing.T) {
		_, err := f.svc.Save(ctx, f.student.ID, "orientation", 1, submit(training.StatusSubmitted, `{"agreed": true}`))
		require.NoError(t, err)

		form, err := f.svc.Get(ctx, f.student.ID, "orientation", 1)
		require.NoError(t, err)
		assert.Nil(t, form.Draft)
		require.NotNil(t, form.Submitted)
		assert.JSONEq(t, `{"agreed": true}`, string(form.Submitted.Data))

		comps, err := f.compRepo.QueryCompletions(ctx, []string{f.student.ID})
		require.NoError(t, err)
		require.Len(t, comps, 1)
		assert.Equal(t, training.PhaseID("orientation"), comps[0].PhaseID)
		assert.True(t, comps[0].Completed)

		_, err = f.svc.Save(ctx, f.student.ID, "observation", 1, submit(training.StatusDraft, "{}"))
		assert.NoError(t, err)
	})

	// instructional-2, orientation draft, orientation submit, observation draft
	for i := 0; i < 4; i++ {
		select {
		case evt := <-events:
			assert.Equal(t, notify.ProgressChanged, evt.Type)
			assert.Equal(t, f.student.ID, evt.StudentID)
		case <-time.After(time.Second):
			t.Fatalf("missing event #%d", i+1)
		}
	}
}

func TestService_GetAndQuery(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.Get(ctx, f.student.ID, "orientation", 1)
	assert.Equal(t, training.ErrNotFound, errors.Cause(err))
	_, err = f.svc.Get(ctx, f.student.ID, "nope", 1)
	assert.Equal(t, training.ErrPhaseNotFound, errors.Cause(err))

	_, err = f.svc.Save(ctx, f.student.ID, "orientation", 1, submit(training.StatusSubmitted, `{"v": 1}`))
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, f.student.ID, "orientation", 1, submit(training.StatusDraft, `{"v": 2}`))
	require.NoError(t, err)

	form, err := f.svc.Get(ctx, f.student.ID, "orientation", 1)
	require.NoError(t, err)
	require.NotNil(t, form.Draft)
	require.NotNil(t, form.Submitted)
	assert.JSONEq(t, `{"v": 2}`, string(form.Draft.Data))
	assert.JSONEq(t, `{"v": 1}`, string(form.Submitted.Data))

	subs, err := f.svc.Query(ctx, training.QueryFilter{StudentIDs: []string{f.student.ID}, Status: training.StatusDraft})
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	_, err = f.svc.Query(ctx, training.QueryFilter{PhaseID: "nope"})
	assert.Equal(t, training.ErrPhaseNotFound, errors.Cause(err))
}

func TestService_Progress(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	prog, err := f.svc.Progress(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, prog.Summary.OverallPercentage)
	assert.Equal(t, len(f.program.Phases), prog.Summary.TotalPhases)
	require.NotNil(t, prog.CurrentPhase)
	assert.Equal(t, training.PhaseID("orientation"), prog.CurrentPhase.ID)

	testutil.SubmitPhase(t, f.subRepo, f.student.ID, f.phase(t, "orientation"))
	testutil.SubmitPhase(t, f.subRepo, f.student.ID, f.phase(t, "observation"))
	testutil.CreateSubmission(t, f.subRepo, f.student.ID, "instructional", 1, training.StatusSubmitted)
	testutil.CreateSubmission(t, f.subRepo, f.student.ID, "instructional", 1, training.StatusSubmitted) // resubmitted
	testutil.CreateSubmission(t, f.subRepo, f.student.ID, "instructional", 2, training.StatusDraft)

	prog, err = f.svc.Progress(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, prog.Summary.CompletedForms) // 1 + 5 + 1
	assert.Equal(t, 2, prog.Summary.CompletedPhases)
	assert.Equal(t, training.Percentage(7, prog.Summary.TotalForms), prog.Summary.OverallPercentage)

	states := make(map[training.PhaseID]training.PhaseState)
	for _, ps := range prog.Phases {
		states[ps.ID] = ps.State
	}
	assert.Equal(t, training.StateComplete, states["observation"])
	assert.Equal(t, training.StateInProgress, states["instructional"])
	assert.Equal(t, training.StateNotStarted, states["instructional-summaries"])
	assert.Equal(t, training.StateLocked, states["independent"])
	assert.Equal(t, training.StateLocked, states["final-evaluation"])
	assert.Equal(t, training.PhaseID("instructional"), prog.CurrentPhase.ID)
}

func TestService_SignOff(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	testutil.SubmitPhase(t, f.subRepo, f.student.ID, f.phase(t, "orientation"))
	testutil.SubmitPhase(t, f.subRepo, f.student.ID, f.phase(t, "observation"))

	_, err := f.svc.Save(ctx, f.student.ID, "independent", 1, submit(training.StatusDraft, "{}"))
	assert.Equal(t, training.ErrPhaseLocked, errors.Cause(err))

	_, err = f.svc.SignOff(ctx, f.student.ID, "nope", true, f.coord.ID)
	assert.Equal(t, training.ErrPhaseNotFound, errors.Cause(err))

	prog, err := f.svc.SignOff(ctx, f.student.ID, "instructional", true, f.coord.ID)
	require.NoError(t, err)
	for _, ps := range prog.Phases {
		if ps.ID == "instructional" {
			assert.True(t, ps.SignedOff)
			assert.Equal(t, training.StateComplete, ps.State)
		}
		if ps.ID == "independent" {
			assert.True(t, ps.Accessible)
		}
	}
	assert.Equal(t, 3, prog.Summary.CompletedPhases)

	_, err = f.svc.Save(ctx, f.student.ID, "independent", 1, submit(training.StatusDraft, "{}"))
	assert.NoError(t, err)

	comps, err := f.compRepo.QueryCompletions(ctx, []string{f.student.ID})
	require.NoError(t, err)
	byPhase := make(map[training.PhaseID]training.PhaseCompletion)
	for _, c := range comps {
		byPhase[c.PhaseID] = c
	}
	assert.True(t, byPhase["instructional"].Completed)
	assert.Equal(t, f.coord.ID, byPhase["instructional"].SignedOffBy)

	// revoking the sign-off locks the dependents again
	_, err = f.svc.SignOff(ctx, f.student.ID, "instructional", false, f.coord.ID)
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, f.student.ID, "independent", 1, submit(training.StatusDraft, "{}"))
	assert.Equal(t, training.ErrPhaseLocked, errors.Cause(err))
}

func TestService_OverviewAndReport(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	testutil.SubmitPhase(t, f.subRepo, f.student.ID, f.phase(t, "orientation"))
	testutil.CreateSubmission(t, f.subRepo, f.student.ID, "observation", 1, training.StatusSubmitted)

	students := []training.Student{
		{ID: f.student.ID, Name: f.student.Name},
		{ID: f.coord.ID, Name: "No submissions"},
	}
	overviews, err := f.svc.Overview(ctx, students)
	require.NoError(t, err)
	require.Len(t, overviews, 2)
	assert.Equal(t, 2, overviews[0].Summary.CompletedForms)
	assert.Equal(t, 1, overviews[0].Summary.CompletedPhases)
	require.NotNil(t, overviews[0].CurrentPhase)
	assert.Equal(t, training.PhaseID("observation"), *overviews[0].CurrentPhase)
	assert.Equal(t, 0, overviews[1].Summary.CompletedForms)

	overviews, err = f.svc.Overview(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, overviews)

	report, err := f.svc.Report(ctx, students[0])
	require.NoError(t, err)
	assert.Equal(t, f.program.Name, report.ProgramName)
	assert.Len(t, report.Submissions, 2)
	assert.Equal(t, 2, report.Progress.Summary.CompletedForms)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestService_Purge(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	events, cancel := f.broker.Subscribe("")
	defer cancel()

	testutil.SubmitPhase(t, f.subRepo, f.student.ID, f.phase(t, "orientation"))
	_, err := f.svc.SignOff(ctx, f.student.ID, "observation", true, f.coord.ID)
	require.NoError(t, err)
	<-events

	cnt, err := f.svc.Purge(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	evt := <-events
	assert.Equal(t, notify.DataPurged, evt.Type)

	prog, err := f.svc.Progress(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, prog.Summary.CompletedForms)
	assert.Equal(t, 0, prog.Summary.CompletedPhases)
	comps, err := f.compRepo.QueryCompletions(ctx, []string{f.student.ID})
	require.NoError(t, err)
	assert.Empty(t, comps)
}
