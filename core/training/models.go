package training

import (
	"encoding/json"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
)

// Student is the part of a user account the training domain cares about.
type Student struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// NewSubmission is what a student sends when saving (draft) or submitting a form.
type NewSubmission struct {
	Status SubmissionStatus `json:"status" validate:"required,substatus"`
	Data   json.RawMessage  `json:"data" validate:"jsonobject"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	if len(ns.Data) == 0 || string(ns.Data) == "null" {
		ns.Data = json.RawMessage("{}")
	}
	return validate.Struct(ns)
}

// Form holds both revisions of a form: the last submitted one and the draft being edited.
type Form struct {
	PhaseID    PhaseID         `json:"phase_id"`
	FormNumber int             `json:"form_number"`
	Draft      *FormSubmission `json:"draft"`
	Submitted  *FormSubmission `json:"submitted"`
}

type QueryFilter struct {
	StudentIDs []string         `query:"-"`
	PhaseID    PhaseID          `query:"phase"`
	Status     SubmissionStatus `query:"status"`
	FormNumber int              `query:"form"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentIDs == nil && qf.PhaseID == "" && qf.Status == "" && qf.FormNumber == 0
}

// PhaseCompletion is the persisted completion flag of a phase for a student.
// SignedOff is set by a coordinator and counts as completed whatever the form counts are.
type PhaseCompletion struct {
	StudentID   string    `json:"student_id"`
	PhaseID     PhaseID   `json:"phase_id"`
	Completed   bool      `json:"completed"`
	SignedOff   bool      `json:"signed_off"`
	SignedOffBy string    `json:"signed_off_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

type SignOff struct {
	SignedOff bool `json:"signed_off"`
}

type StudentProgress struct {
	StudentID    string        `json:"student_id"`
	Summary      Summary       `json:"summary"`
	Phases       []PhaseStatus `json:"phases"`
	CurrentPhase *PhaseStatus  `json:"current_phase"`
}

// StudentOverview is a row of the coordinator portal.
type StudentOverview struct {
	Student      Student  `json:"student"`
	Summary      Summary  `json:"summary"`
	CurrentPhase *PhaseID `json:"current_phase"`
	SignedOff    int      `json:"signed_off"`
}

// StudentReport is everything needed to render the progress report of a student.
type StudentReport struct {
	ProgramName string           `json:"program_name"`
	Student     Student          `json:"student"`
	Progress    StudentProgress  `json:"progress"`
	Submissions []FormSubmission `json:"submissions"` // submitted only, oldest first
	GeneratedAt time.Time        `json:"generated_at"`
}

// ReportRenderer formats a StudentReport, eg. as a PDF document.
type ReportRenderer interface {
	RenderStudentReport(w io.Writer, report StudentReport) error
}
