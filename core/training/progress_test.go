package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sub(phase PhaseID, form int, status SubmissionStatus) FormSubmission {
	return FormSubmission{PhaseID: phase, FormNumber: form, Status: status}
}

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name        string
		subs        []FormSubmission
		required    map[PhaseID]int
		wantPhases  []PhaseProgress
		wantSummary Summary
	}{
		{
			name: "duplicates and drafts are not counted",
			subs: []FormSubmission{
				sub("A", 1, StatusSubmitted),
				sub("A", 1, StatusSubmitted),
				sub("A", 2, StatusDraft),
				sub("B", 1, StatusSubmitted),
			},
			required: map[PhaseID]int{"A": 2, "B": 3},
			wantPhases: []PhaseProgress{
				{PhaseID: "A", Completed: 1, Total: 2, Percentage: 50},
				{PhaseID: "B", Completed: 1, Total: 3, Percentage: 33},
			},
			wantSummary: Summary{CompletedForms: 2, TotalForms: 5, OverallPercentage: 40, TotalPhases: 2},
		},
		{
			name:     "completed is clamped to total",
			subs:     []FormSubmission{sub("A", 1, StatusSubmitted), sub("A", 2, StatusSubmitted), sub("A", 3, StatusSubmitted)},
			required: map[PhaseID]int{"A": 2},
			wantPhases: []PhaseProgress{
				{PhaseID: "A", Completed: 2, Total: 2, Percentage: 100},
			},
			wantSummary: Summary{CompletedForms: 2, TotalForms: 2, OverallPercentage: 100, CompletedPhases: 1, TotalPhases: 1},
		},
		{
			name:     "unknown phases are ignored",
			subs:     []FormSubmission{sub("Z", 1, StatusSubmitted)},
			required: map[PhaseID]int{"A": 1},
			wantPhases: []PhaseProgress{
				{PhaseID: "A", Total: 1},
			},
			wantSummary: Summary{TotalForms: 1, TotalPhases: 1},
		},
		{
			name:        "no phases",
			subs:        []FormSubmission{sub("A", 1, StatusSubmitted)},
			required:    map[PhaseID]int{},
			wantPhases:  []PhaseProgress{},
			wantSummary: Summary{},
		},
		{
			name:     "zero and negative totals",
			subs:     []FormSubmission{sub("A", 1, StatusSubmitted)},
			required: map[PhaseID]int{"A": 0, "B": -3},
			wantPhases: []PhaseProgress{
				{PhaseID: "A"},
				{PhaseID: "B"},
			},
			wantSummary: Summary{TotalPhases: 2},
		},
		{
			name:     "half rounds up",
			subs:     []FormSubmission{sub("A", 1, StatusSubmitted)},
			required: map[PhaseID]int{"A": 8},
			wantPhases: []PhaseProgress{
				{PhaseID: "A", Completed: 1, Total: 8, Percentage: 13}, // 12.5
			},
			wantSummary: Summary{CompletedForms: 1, TotalForms: 8, OverallPercentage: 13, TotalPhases: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeProgress(tt.subs, tt.required)
			assert.Equal(t, tt.wantPhases, got.Phases)
			assert.Equal(t, tt.wantSummary, got.Summary)
		})
	}
}

func TestComputeProgress_Bounds(t *testing.T) {
	required := map[PhaseID]int{"A": 3, "B": 1, "C": 0}
	var subs []FormSubmission
	for form := 0; form < 6; form++ {
		for _, ph := range []PhaseID{"A", "B", "C", "D"} {
			subs = append(subs, sub(ph, form, StatusSubmitted), sub(ph, form, StatusDraft))
		}
	}

	report := ComputeProgress(subs, required)
	require.Len(t, report.Phases, 3)
	for _, pp := range report.Phases {
		assert.GreaterOrEqual(t, pp.Completed, 0, pp.PhaseID)
		assert.LessOrEqual(t, pp.Completed, pp.Total, pp.PhaseID)
		assert.LessOrEqual(t, pp.Percentage, 100, pp.PhaseID)
	}
	assert.Equal(t, 4, report.CompletedForms)
	assert.Equal(t, 100, report.OverallPercentage)
}

func TestComputeProgress_ResubmitCountsOnce(t *testing.T) {
	required := map[PhaseID]int{"A": 5}
	once := ComputeProgress([]FormSubmission{sub("A", 4, StatusSubmitted)}, required)
	twice := ComputeProgress([]FormSubmission{sub("A", 4, StatusSubmitted), sub("A", 4, StatusSubmitted)}, required)
	assert.Equal(t, once, twice)
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 5, 0},
		{2, 5, 40},
		{1, 3, 33},
		{2, 3, 67},
		{1, 200, 1}, // 0.5
		{1, 201, 0},
		{5, 5, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.part, tt.total), "Percentage(%d, %d)", tt.part, tt.total)
	}
}

func TestProgressReport_Phase(t *testing.T) {
	report := ComputeProgress([]FormSubmission{sub("A", 1, StatusSubmitted)}, map[PhaseID]int{"A": 2})
	assert.Equal(t, PhaseProgress{PhaseID: "A", Completed: 1, Total: 2, Percentage: 50}, report.Phase("A"))
	assert.Equal(t, PhaseProgress{PhaseID: "nope"}, report.Phase("nope"))
}
