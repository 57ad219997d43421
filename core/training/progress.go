package training

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// PhaseID identifies a phase of the training program, eg. "instructional-summaries".
type PhaseID string

type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "draft"
	StatusSubmitted SubmissionStatus = "submitted"
)

// FormSubmission is one student's filled-in form for a phase.
// A draft and a submitted revision of the same (phase, form number) may coexist.
type FormSubmission struct {
	ID          string           `json:"id"`
	StudentID   string           `json:"student_id"`
	PhaseID     PhaseID          `json:"phase_id"`
	FormNumber  int              `json:"form_number"`
	Status      SubmissionStatus `json:"status"`
	Data        json.RawMessage  `json:"data,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"` // UTC; zero for drafts
	CreatedAt   time.Time        `json:"created_at"`   // UTC
	UpdatedAt   time.Time        `json:"updated_at"`   // UTC
}

// PhaseProgress is the completion of a single phase.
type PhaseProgress struct {
	PhaseID    PhaseID `json:"phase_id"`
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage int     `json:"percentage"`
}

// IsComplete reports whether every required form of the phase has been submitted.
// A phase requiring no forms is never complete on counts alone.
func (pp PhaseProgress) IsComplete() bool {
	return pp.Total > 0 && pp.Completed == pp.Total
}

// Summary is the overall completion of a student across all phases.
type Summary struct {
	CompletedForms    int `json:"completed_forms"`
	TotalForms        int `json:"total_forms"`
	OverallPercentage int `json:"overall_percentage"`
	CompletedPhases   int `json:"completed_phases"`
	TotalPhases       int `json:"total_phases"`
}

type ProgressReport struct {
	Summary
	Phases []PhaseProgress `json:"phases"`
}

// Phase returns the progress of the given phase, zero valued if the phase is not part of the report.
func (r ProgressReport) Phase(id PhaseID) PhaseProgress {
	for _, pp := range r.Phases {
		if pp.PhaseID == id {
			return pp
		}
	}
	return PhaseProgress{PhaseID: id}
}

// ComputeProgress aggregates submissions against the required form count of each phase.
// Phases are reported sorted by ID; Program.Progress reports them in program order instead.
func ComputeProgress(submissions []FormSubmission, required map[PhaseID]int) ProgressReport {
	ids := make([]PhaseID, 0, len(required))
	for id := range required {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	reqs := make([]requirement, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, requirement{id: id, total: required[id]})
	}
	return computeProgress(submissions, reqs)
}

type requirement struct {
	id    PhaseID
	total int
}

func computeProgress(submissions []FormSubmission, reqs []requirement) ProgressReport {
	// distinct submitted form numbers per phase
	submitted := make(map[PhaseID]map[int]struct{}, len(reqs))
	for _, sub := range submissions {
		if sub.Status != StatusSubmitted {
			continue
		}
		forms, ok := submitted[sub.PhaseID]
		if !ok {
			forms = make(map[int]struct{})
			submitted[sub.PhaseID] = forms
		}
		forms[sub.FormNumber] = struct{}{}
	}

	report := ProgressReport{
		Summary: Summary{TotalPhases: len(reqs)},
		Phases:  make([]PhaseProgress, 0, len(reqs)),
	}
	for _, req := range reqs {
		total := req.total
		if total < 0 {
			total = 0
		}
		completed := len(submitted[req.id])
		if completed > total {
			completed = total // seed data may hold more forms than required
		}

		pp := PhaseProgress{
			PhaseID:    req.id,
			Completed:  completed,
			Total:      total,
			Percentage: Percentage(completed, total),
		}
		report.Phases = append(report.Phases, pp)

		report.CompletedForms += completed
		report.TotalForms += total
		if pp.IsComplete() {
			report.CompletedPhases++
		}
	}
	report.OverallPercentage = Percentage(report.CompletedForms, report.TotalForms)
	return report
}

// Percentage returns round(100 * part / total), rounding halves up. It is 0 when total is 0.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(100*float64(part)/float64(total) + 0.5))
}
