package training

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProgramYAML = `
name: Test program
phases:
  - id: orientation
    total: 1
  - id: observation
    total: 2
    prerequisites: [orientation]
  - id: instructional
    total: 2
    prerequisites: [observation]
  - id: instructional-2
    total: 1
    always_accessible: true
  - id: independent
    name: Independent
    total: 3
    prerequisites: [observation, instructional]
`

func testProgram(t *testing.T) *Program {
	t.Helper()
	p, err := LoadProgram(strings.NewReader(testProgramYAML))
	require.NoError(t, err)
	return p
}

func submitted(phase PhaseID, forms ...int) []FormSubmission {
	subs := make([]FormSubmission, 0, len(forms))
	for _, f := range forms {
		subs = append(subs, sub(phase, f, StatusSubmitted))
	}
	return subs
}

func TestLoadProgram(t *testing.T) {
	p := testProgram(t)

	assert.Equal(t, "Test program", p.Name)
	assert.Equal(t, []PhaseID{"orientation", "observation", "instructional", "instructional-2", "independent"}, p.PhaseIDs())

	ph, ok := p.Phase("orientation")
	require.True(t, ok)
	assert.Equal(t, "orientation", ph.Name) // defaults to the ID
	ph, _ = p.Phase("independent")
	assert.Equal(t, "Independent", ph.Name)
	_, ok = p.Phase("nope")
	assert.False(t, ok)

	assert.Equal(t, map[PhaseID]int{
		"orientation": 1, "observation": 2, "instructional": 2, "instructional-2": 1, "independent": 3,
	}, p.RequiredCounts())
	assert.Equal(t, DependencyMap{
		"observation":   {"orientation"},
		"instructional": {"observation"},
		"independent":   {"observation", "instructional"},
	}, p.Dependencies())

	// Dependencies returns a copy
	deps := p.Dependencies()
	deps["independent"][0] = "tampered"
	assert.Equal(t, PhaseID("observation"), p.Dependencies()["independent"][0])
}

func TestLoadProgram_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "no phases", yaml: "name: empty\n", wantErr: "no phases"},
		{name: "missing id", yaml: "phases:\n  - total: 1\n", wantErr: "missing id"},
		{name: "duplicate id", yaml: "phases:\n  - id: a\n  - id: a\n", wantErr: "duplicate id"},
		{name: "negative total", yaml: "phases:\n  - id: a\n    total: -1\n", wantErr: "must not be negative"},
		{name: "self dependency", yaml: "phases:\n  - id: a\n    prerequisites: [a]\n", wantErr: "depends on itself"},
		{name: "unknown prerequisite", yaml: "phases:\n  - id: a\n    prerequisites: [b]\n", wantErr: `unknown prerequisite "b"`},
		{
			name:    "cycle",
			yaml:    "phases:\n  - id: a\n    prerequisites: [c]\n  - id: b\n    prerequisites: [a]\n  - id: c\n    prerequisites: [b]\n",
			wantErr: "cycle: a -> c -> b -> a",
		},
		{name: "bad addendum pattern", yaml: "addendum_pattern: '('\nphases:\n  - id: a\n", wantErr: "addendum pattern"},
		{name: "unknown field", yaml: "phases:\n  - id: a\n    totl: 1\n", wantErr: "decoding program"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProgram(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadProgramFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "program.yaml")
	require.NoError(t, os.WriteFile(fp, []byte(testProgramYAML), 0o600))

	p, err := LoadConfiguredProgram(fp)
	require.NoError(t, err)
	assert.Len(t, p.Phases, 5)

	_, err = LoadProgramFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultProgram(t *testing.T) {
	p, err := LoadConfiguredProgram("")
	require.NoError(t, err)

	assert.NotEmpty(t, p.Name)
	assert.Equal(t, []PhaseID{
		"orientation", "observation", "instructional", "instructional-summaries",
		"instructional-2", "independent", "final-evaluation",
	}, p.PhaseIDs())
	assert.Equal(t, []PhaseID{"observation", "instructional"}, p.Dependencies()["independent"])
	assert.True(t, p.IsAlwaysAccessible("instructional-2"))
	assert.False(t, p.IsAlwaysAccessible("instructional"))
}

func TestProgram_IsAccessible(t *testing.T) {
	p := testProgram(t)

	tests := []struct {
		name      string
		id        PhaseID
		completed PhaseSet
		want      bool
	}{
		{name: "no prerequisites", id: "orientation", want: true},
		{name: "locked", id: "independent", completed: NewPhaseSet("observation"), want: false},
		{name: "unlocked", id: "independent", completed: NewPhaseSet("observation", "instructional"), want: true},
		{name: "always accessible", id: "instructional-2", want: true},
		{name: "unknown phase is locked", id: "nope", completed: NewPhaseSet("orientation"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsAccessible(tt.id, tt.completed))
		})
	}
}

func TestProgram_AddendumPattern(t *testing.T) {
	p, err := LoadProgram(strings.NewReader(`
addendum_pattern: '-2$'
phases:
  - id: a
    total: 1
  - id: b
    total: 1
    prerequisites: [a]
  - id: b-2
    total: 1
    prerequisites: [b]
`))
	require.NoError(t, err)

	assert.False(t, p.IsAccessible("b", nil))
	assert.True(t, p.IsAccessible("b-2", nil))
}

func TestProgram_Progress(t *testing.T) {
	p := testProgram(t)

	subs := append(submitted("orientation", 1), submitted("observation", 1, 2, 2)...)
	subs = append(subs, submitted("ghost", 1)...)
	subs = append(subs, sub("instructional", 1, StatusDraft))

	report := p.Progress(subs)
	require.Len(t, report.Phases, 5)
	assert.Equal(t, PhaseID("orientation"), report.Phases[0].PhaseID) // program order
	assert.Equal(t, 1, report.Phase("orientation").Completed)
	assert.Equal(t, 2, report.Phase("observation").Completed)
	assert.Equal(t, 0, report.Phase("instructional").Completed)
	assert.Equal(t, Summary{CompletedForms: 3, TotalForms: 9, OverallPercentage: 33, CompletedPhases: 2, TotalPhases: 5}, report.Summary)

	completed := p.CompletedPhases(report, NewPhaseSet("instructional", "ghost"))
	assert.Equal(t, []PhaseID{"instructional", "observation", "orientation"}, completed.Sorted())
}

func TestProgram_Statuses(t *testing.T) {
	p := testProgram(t)

	subs := append(submitted("orientation", 1), submitted("observation", 1, 2)...)
	subs = append(subs, submitted("independent", 1)...) // seeded before the gate existed
	report := p.Progress(subs)

	statuses := p.Statuses(report, nil)
	require.Len(t, statuses, 5)

	byID := make(map[PhaseID]PhaseStatus, len(statuses))
	for _, ps := range statuses {
		byID[ps.ID] = ps
	}
	assert.Equal(t, StateComplete, byID["orientation"].State)
	assert.Equal(t, StateComplete, byID["observation"].State)
	assert.Equal(t, StateNotStarted, byID["instructional"].State)
	assert.Equal(t, StateNotStarted, byID["instructional-2"].State)
	assert.True(t, byID["instructional-2"].AlwaysAccessible)
	assert.Equal(t, StateLocked, byID["independent"].State)
	assert.Equal(t, []PhaseID{"instructional"}, byID["independent"].MissingPrerequisites)

	current := p.CurrentPhase(report, nil)
	require.NotNil(t, current)
	assert.Equal(t, PhaseID("instructional"), current.ID)

	// a coordinator sign-off unlocks the dependent phases
	statuses = p.Statuses(report, NewPhaseSet("instructional"))
	byID = make(map[PhaseID]PhaseStatus, len(statuses))
	for _, ps := range statuses {
		byID[ps.ID] = ps
	}
	assert.Equal(t, StateComplete, byID["instructional"].State)
	assert.True(t, byID["instructional"].SignedOff)
	assert.Equal(t, "Complete (signed off)", byID["instructional"].Label())
	assert.Equal(t, StateInProgress, byID["independent"].State)
	assert.Equal(t, "In progress (33%)", byID["independent"].Label())
	assert.Empty(t, byID["independent"].MissingPrerequisites)
}

func TestCurrentPhase_AllComplete(t *testing.T) {
	p := testProgram(t)

	var subs []FormSubmission
	for _, ph := range p.Phases {
		for f := 1; f <= ph.Total; f++ {
			subs = append(subs, sub(ph.ID, f, StatusSubmitted))
		}
	}
	report := p.Progress(subs)
	assert.Equal(t, 100, report.OverallPercentage)
	assert.Nil(t, p.CurrentPhase(report, nil))
}

func TestPhaseStatus_Label(t *testing.T) {
	tests := []struct {
		status PhaseStatus
		want   string
	}{
		{PhaseStatus{State: StateLocked}, "Locked"},
		{PhaseStatus{State: StateNotStarted}, "Not started"},
		{PhaseStatus{State: StateInProgress, Percentage: 40}, "In progress (40%)"},
		{PhaseStatus{State: StateComplete, Completed: 2, Total: 2}, "Complete"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Label())
	}
}
