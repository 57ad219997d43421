package training

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/notify"
)

var (
	// errors
	ErrNotFound      = errors.New("submission not found")
	ErrPhaseNotFound = errors.New("phase not found")
	ErrPhaseLocked   = errors.New("phase is locked: prerequisites are not completed")

	NowFunc = time.Now // mockable
)

type (
	SubmissionRepository interface {
		// UpsertSubmission inserts or updates the (student, phase, form number, status) row.
		UpsertSubmission(ctx context.Context, sub FormSubmission, exec ...core.DBExecutor) (FormSubmission, error)
		DeleteSubmission(ctx context.Context, studentID string, phaseID PhaseID, formNumber int, status SubmissionStatus, exec ...core.DBExecutor) error
		QuerySubmissions(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]FormSubmission, error)
		DeleteStudentSubmissions(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error)
	}

	CompletionRepository interface {
		QueryCompletions(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]PhaseCompletion, error)
		UpsertCompletion(ctx context.Context, pc PhaseCompletion, exec ...core.DBExecutor) error
		DeleteStudentCompletions(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Program() *Program
		Save(ctx context.Context, studentID string, phaseID PhaseID, formNumber int, ns NewSubmission) (FormSubmission, error)
		Get(ctx context.Context, studentID string, phaseID PhaseID, formNumber int) (Form, error)
		Query(ctx context.Context, filter QueryFilter) ([]FormSubmission, error)
		Purge(ctx context.Context, studentID string) (int, error)
		Progress(ctx context.Context, studentID string) (StudentProgress, error)
		SignOff(ctx context.Context, studentID string, phaseID PhaseID, signedOff bool, coordinatorID string) (StudentProgress, error)
		Overview(ctx context.Context, students []Student) ([]StudentOverview, error)
		Report(ctx context.Context, student Student) (StudentReport, error)
	}

	service struct {
		program   *Program
		db        core.DB
		subRepo   SubmissionRepository
		compRepo  CompletionRepository
		publisher notify.Publisher
	}
)

func NewService(program *Program, db core.DB, subRepo SubmissionRepository, compRepo CompletionRepository, publisher notify.Publisher) Service {
	return &service{
		program:   program,
		db:        db,
		subRepo:   subRepo,
		compRepo:  compRepo,
		publisher: publisher,
	}
}

func (svc *service) Program() *Program { return svc.program }

// Save stores a draft or a submitted revision of a form, then refreshes the phase completion flags of the student.
func (svc *service) Save(ctx context.Context, studentID string, phaseID PhaseID, formNumber int, ns NewSubmission) (FormSubmission, error) {
	ph, ok := svc.program.Phase(phaseID)
	if !ok {
		return FormSubmission{}, ErrPhaseNotFound
	}
	if formNumber < 1 || formNumber > ph.Total {
		return FormSubmission{}, core.NewValidationError(nil, core.FieldError{
			Field: "form_number",
			Error: errors.Errorf("form number must be between 1 and %d", ph.Total).Error(),
		})
	}

	var saved FormSubmission
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		_, completed, err := svc.loadProgress(ctx, studentID, tx)
		if err != nil {
			return err
		}
		if !svc.program.IsAccessible(phaseID, completed) {
			return ErrPhaseLocked
		}

		now := NowFunc().UTC()
		sub := FormSubmission{
			StudentID:  studentID,
			PhaseID:    phaseID,
			FormNumber: formNumber,
			Status:     ns.Status,
			Data:       ns.Data,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if sub.Status == StatusSubmitted {
			sub.SubmittedAt = now
		}
		if saved, err = svc.subRepo.UpsertSubmission(ctx, sub, tx); err != nil {
			return errors.Wrap(err, "upserting submission")
		}
		if sub.Status == StatusSubmitted {
			// the draft has been turned into the submitted revision
			if err = svc.subRepo.DeleteSubmission(ctx, studentID, phaseID, formNumber, StatusDraft, tx); err != nil && errors.Cause(err) != ErrNotFound {
				return errors.Wrap(err, "deleting draft")
			}
			return svc.syncCompletions(ctx, studentID, tx)
		}
		return nil
	})
	if err != nil {
		return FormSubmission{}, err
	}

	svc.publish(notify.ProgressChanged, studentID, phaseID)
	return saved, nil
}

func (svc *service) Get(ctx context.Context, studentID string, phaseID PhaseID, formNumber int) (Form, error) {
	if _, ok := svc.program.Phase(phaseID); !ok {
		return Form{}, ErrPhaseNotFound
	}

	subs, err := svc.subRepo.QuerySubmissions(ctx, QueryFilter{
		StudentIDs: []string{studentID},
		PhaseID:    phaseID,
		FormNumber: formNumber,
	})
	if err != nil {
		return Form{}, errors.Wrap(err, "querying submissions")
	}
	if len(subs) == 0 {
		return Form{}, ErrNotFound
	}

	form := Form{PhaseID: phaseID, FormNumber: formNumber}
	for i := range subs {
		switch subs[i].Status {
		case StatusDraft:
			form.Draft = &subs[i]
		case StatusSubmitted:
			form.Submitted = &subs[i]
		}
	}
	return form, nil
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]FormSubmission, error) {
	if filter.PhaseID != "" {
		if _, ok := svc.program.Phase(filter.PhaseID); !ok {
			return nil, ErrPhaseNotFound
		}
	}
	subs, err := svc.subRepo.QuerySubmissions(ctx, filter)
	return subs, errors.Wrap(err, "querying submissions")
}

// Purge deletes every submission and completion flag of the student. It returns the number of deleted submissions.
func (svc *service) Purge(ctx context.Context, studentID string) (int, error) {
	var cnt int
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if cnt, err = svc.subRepo.DeleteStudentSubmissions(ctx, studentID, tx); err != nil {
			return errors.Wrap(err, "deleting submissions")
		}
		_, err = svc.compRepo.DeleteStudentCompletions(ctx, studentID, tx)
		return errors.Wrap(err, "deleting completions")
	})
	if err != nil {
		return 0, err
	}

	svc.publish(notify.DataPurged, studentID, "")
	return cnt, nil
}

func (svc *service) Progress(ctx context.Context, studentID string) (StudentProgress, error) {
	report, err := svc.studentReport(ctx, studentID)
	if err != nil {
		return StudentProgress{}, err
	}
	comps, err := svc.compRepo.QueryCompletions(ctx, []string{studentID})
	if err != nil {
		return StudentProgress{}, errors.Wrap(err, "querying completions")
	}
	return svc.buildProgress(studentID, report, signedOffSet(comps)), nil
}

// SignOff marks (or unmarks) a phase as completed by a coordinator, whatever its form count.
func (svc *service) SignOff(ctx context.Context, studentID string, phaseID PhaseID, signedOff bool, coordinatorID string) (StudentProgress, error) {
	if _, ok := svc.program.Phase(phaseID); !ok {
		return StudentProgress{}, ErrPhaseNotFound
	}

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		comps, err := svc.compRepo.QueryCompletions(ctx, []string{studentID}, tx)
		if err != nil {
			return errors.Wrap(err, "querying completions")
		}
		pc := PhaseCompletion{StudentID: studentID, PhaseID: phaseID}
		for _, c := range comps {
			if c.PhaseID == phaseID {
				pc = c
				break
			}
		}
		pc.SignedOff = signedOff
		pc.SignedOffBy = ""
		if signedOff {
			pc.SignedOffBy = coordinatorID
		}
		pc.UpdatedAt = NowFunc().UTC()
		if err = svc.compRepo.UpsertCompletion(ctx, pc, tx); err != nil {
			return errors.Wrap(err, "upserting completion")
		}
		return svc.syncCompletions(ctx, studentID, tx)
	})
	if err != nil {
		return StudentProgress{}, err
	}

	svc.publish(notify.PhaseSignedOff, studentID, phaseID)
	return svc.Progress(ctx, studentID)
}

// Overview summarizes the progress of several students at once, in the given order.
func (svc *service) Overview(ctx context.Context, students []Student) ([]StudentOverview, error) {
	overviews := make([]StudentOverview, 0, len(students))
	if len(students) == 0 {
		return overviews, nil
	}

	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	subs, err := svc.subRepo.QuerySubmissions(ctx, QueryFilter{StudentIDs: ids, Status: StatusSubmitted})
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	comps, err := svc.compRepo.QueryCompletions(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying completions")
	}

	subsByStudent := make(map[string][]FormSubmission, len(students))
	for _, sub := range subs {
		subsByStudent[sub.StudentID] = append(subsByStudent[sub.StudentID], sub)
	}
	compsByStudent := make(map[string][]PhaseCompletion, len(students))
	for _, c := range comps {
		compsByStudent[c.StudentID] = append(compsByStudent[c.StudentID], c)
	}

	for _, s := range students {
		signedOff := signedOffSet(compsByStudent[s.ID])
		prog := svc.buildProgress(s.ID, svc.program.Progress(subsByStudent[s.ID]), signedOff)
		ov := StudentOverview{Student: s, Summary: prog.Summary, SignedOff: len(signedOff)}
		if prog.CurrentPhase != nil {
			id := prog.CurrentPhase.ID
			ov.CurrentPhase = &id
		}
		overviews = append(overviews, ov)
	}
	return overviews, nil
}

func (svc *service) Report(ctx context.Context, student Student) (StudentReport, error) {
	subs, err := svc.subRepo.QuerySubmissions(ctx, QueryFilter{StudentIDs: []string{student.ID}, Status: StatusSubmitted})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "querying submissions")
	}
	comps, err := svc.compRepo.QueryCompletions(ctx, []string{student.ID})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "querying completions")
	}

	sort.SliceStable(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
	return StudentReport{
		ProgramName: svc.program.Name,
		Student:     student,
		Progress:    svc.buildProgress(student.ID, svc.program.Progress(subs), signedOffSet(comps)),
		Submissions: subs,
		GeneratedAt: NowFunc().UTC(),
	}, nil
}

func (svc *service) studentReport(ctx context.Context, studentID string, exec ...core.DBExecutor) (ProgressReport, error) {
	subs, err := svc.subRepo.QuerySubmissions(ctx, QueryFilter{StudentIDs: []string{studentID}, Status: StatusSubmitted}, exec...)
	if err != nil {
		return ProgressReport{}, errors.Wrap(err, "querying submissions")
	}
	return svc.program.Progress(subs), nil
}

// loadProgress returns the completion flags stored for the student and the set of phases that currently count as completed.
func (svc *service) loadProgress(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]PhaseCompletion, PhaseSet, error) {
	report, err := svc.studentReport(ctx, studentID, exec...)
	if err != nil {
		return nil, nil, err
	}
	comps, err := svc.compRepo.QueryCompletions(ctx, []string{studentID}, exec...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying completions")
	}
	return comps, svc.program.CompletedPhases(report, signedOffSet(comps)), nil
}

// syncCompletions persists the completion flag of every phase whose flag changed.
func (svc *service) syncCompletions(ctx context.Context, studentID string, tx core.DBExecutor) error {
	comps, completed, err := svc.loadProgress(ctx, studentID, tx)
	if err != nil {
		return err
	}

	stored := make(map[PhaseID]PhaseCompletion, len(comps))
	for _, c := range comps {
		stored[c.PhaseID] = c
	}

	now := NowFunc().UTC()
	for _, ph := range svc.program.Phases {
		pc, ok := stored[ph.ID]
		isCompleted := completed.Has(ph.ID)
		if ok && pc.Completed == isCompleted {
			continue
		}
		if !ok && !isCompleted {
			continue
		}
		pc.StudentID = studentID
		pc.PhaseID = ph.ID
		pc.Completed = isCompleted
		pc.UpdatedAt = now
		if err = svc.compRepo.UpsertCompletion(ctx, pc, tx); err != nil {
			return errors.Wrap(err, "upserting completion")
		}
	}
	return nil
}

func (svc *service) buildProgress(studentID string, report ProgressReport, signedOff PhaseSet) StudentProgress {
	statuses := svc.program.Statuses(report, signedOff)

	// signed off phases count as completed phases, not as completed forms
	summary := report.Summary
	summary.CompletedPhases = 0
	for _, ps := range statuses {
		if ps.IsComplete {
			summary.CompletedPhases++
		}
	}
	return StudentProgress{
		StudentID:    studentID,
		Summary:      summary,
		Phases:       statuses,
		CurrentPhase: CurrentPhase(statuses),
	}
}

func (svc *service) publish(typ notify.EventType, studentID string, phaseID PhaseID) {
	if svc.publisher == nil {
		return
	}
	svc.publisher.Publish(notify.Event{
		Type:      typ,
		StudentID: studentID,
		PhaseID:   string(phaseID),
		At:        NowFunc().UTC(),
	})
}

func signedOffSet(comps []PhaseCompletion) PhaseSet {
	set := make(PhaseSet)
	for _, c := range comps {
		if c.SignedOff {
			set.Add(c.PhaseID)
		}
	}
	return set
}
