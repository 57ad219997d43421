package audit

import (
	"time"

	"github.com/fieldtrack/fieldtrack/core"
)

// Actions
const (
	ActionLogin          = "login"
	ActionUserCreate     = "user.create"
	ActionUserUpdate     = "user.update"
	ActionUserDelete     = "user.delete"
	ActionPasswordReset  = "user.password_reset"
	ActionSubmissionSave = "submission.save"
	ActionPurge          = "submission.purge"
	ActionSignOff        = "phase.sign_off"
	ActionReportExport   = "report.export"
	ActionReportEmail    = "report.email"
)

// Entities
const (
	EntityUser       = "user"
	EntitySubmission = "submission"
	EntityPhase      = "phase"
	EntityReport     = "report"
)

type Entry struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewEntry contains information needed to record an Entry.
type NewEntry struct {
	ActorID   string
	ActorName string
	Action    string
	Entity    string
	EntityID  string
	Detail    string
}

type QueryFilter struct {
	ActorID     string    `query:"actor"`
	Action      string    `query:"action"`
	Entity      string    `query:"entity"`
	EntityID    string    `query:"entity_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.ActorID == "" && qf.Action == "" && qf.Entity == "" && qf.EntityID == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.ActorID = core.CleanString(qf.ActorID)
	qf.Action = core.CleanString(qf.Action, true /* lower */)
	qf.Entity = core.CleanString(qf.Entity, true /* lower */)
	qf.EntityID = core.CleanString(qf.EntityID)
}
