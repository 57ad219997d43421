package training

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	appfs "github.com/fieldtrack/fieldtrack/fs"
)

const defaultProgramPath = "assets/program.yaml"

// Phase is a stage of the training program requiring a fixed number of form submissions.
type Phase struct {
	ID               PhaseID   `yaml:"id" json:"id"`
	Name             string    `yaml:"name" json:"name"`
	Description      string    `yaml:"description,omitempty" json:"description,omitempty"`
	Total            int       `yaml:"total" json:"total"`
	Prerequisites    []PhaseID `yaml:"prerequisites,omitempty" json:"prerequisites"`
	AlwaysAccessible bool      `yaml:"always_accessible,omitempty" json:"always_accessible"`
}

// Program is the static configuration of the training: its phases, in display order, and their dependencies.
// It is loaded once and shared read-only by every consumer.
type Program struct {
	Name string `yaml:"name" json:"name"`
	// AddendumPattern optionally marks phases as always accessible by ID (eg. `-2$`).
	// Prefer Phase.AlwaysAccessible; the pattern only exists for legacy phase naming.
	AddendumPattern string  `yaml:"addendum_pattern,omitempty" json:"addendum_pattern,omitempty"`
	Phases          []Phase `yaml:"phases" json:"phases"`

	index    map[PhaseID]int
	deps     DependencyMap
	addendum *regexp.Regexp
}

// NewProgram builds and validates a Program.
func NewProgram(name string, phases ...Phase) (*Program, error) {
	p := &Program{Name: name, Phases: phases}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProgram decodes and validates a YAML program definition.
func LoadProgram(r io.Reader) (*Program, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	p := new(Program)
	if err := dec.Decode(p); err != nil {
		return nil, errors.Wrap(err, "decoding program")
	}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func LoadProgramFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening program file")
	}
	defer func() { _ = f.Close() }()
	return LoadProgram(f)
}

// DefaultProgram loads the program embedded in the binary.
func DefaultProgram() (*Program, error) {
	data, err := appfs.FS.ReadFile(defaultProgramPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading default program")
	}
	return LoadProgram(bytes.NewReader(data))
}

// LoadConfiguredProgram loads `path`, or the embedded default program when path is empty.
func LoadConfiguredProgram(path string) (*Program, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProgram()
	}
	return LoadProgramFile(path)
}

func (p *Program) init() error {
	if len(p.Phases) == 0 {
		return errors.New("program has no phases")
	}

	p.index = make(map[PhaseID]int, len(p.Phases))
	for i := range p.Phases {
		ph := &p.Phases[i]
		ph.ID = PhaseID(strings.TrimSpace(string(ph.ID)))
		if ph.ID == "" {
			return errors.Errorf("phase #%d: missing id", i+1)
		}
		if _, dup := p.index[ph.ID]; dup {
			return errors.Errorf("phase %q: duplicate id", ph.ID)
		}
		if ph.Total < 0 {
			return errors.Errorf("phase %q: total must not be negative", ph.ID)
		}
		if ph.Name == "" {
			ph.Name = string(ph.ID)
		}
		p.index[ph.ID] = i
	}

	p.deps = make(DependencyMap, len(p.Phases))
	for _, ph := range p.Phases {
		for _, prereq := range ph.Prerequisites {
			if prereq == ph.ID {
				return errors.Errorf("phase %q: depends on itself", ph.ID)
			}
			if _, ok := p.index[prereq]; !ok {
				return errors.Errorf("phase %q: unknown prerequisite %q", ph.ID, prereq)
			}
		}
		if len(ph.Prerequisites) > 0 {
			p.deps[ph.ID] = append([]PhaseID(nil), ph.Prerequisites...)
		}
	}
	if cycle := p.findCycle(); cycle != nil {
		return errors.Errorf("phase dependency cycle: %s", joinIDs(cycle, " -> "))
	}

	if p.AddendumPattern != "" {
		re, err := regexp.Compile(p.AddendumPattern)
		if err != nil {
			return errors.Wrap(err, "compiling addendum pattern")
		}
		p.addendum = re
	}
	return nil
}

// findCycle returns the phases forming a dependency cycle, if any.
func (p *Program) findCycle() []PhaseID {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[PhaseID]int, len(p.Phases))
	var stack []PhaseID

	var visit func(id PhaseID) []PhaseID
	visit = func(id PhaseID) []PhaseID {
		state[id] = visiting
		stack = append(stack, id)
		for _, prereq := range p.deps[id] {
			switch state[prereq] {
			case visiting:
				for i, sid := range stack {
					if sid == prereq {
						return append(append([]PhaseID(nil), stack[i:]...), prereq)
					}
				}
			case unvisited:
				if cycle := visit(prereq); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, ph := range p.Phases {
		if state[ph.ID] == unvisited {
			if cycle := visit(ph.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func (p *Program) Phase(id PhaseID) (Phase, bool) {
	i, ok := p.index[id]
	if !ok {
		return Phase{}, false
	}
	return p.Phases[i], true
}

func (p *Program) PhaseIDs() []PhaseID {
	ids := make([]PhaseID, 0, len(p.Phases))
	for _, ph := range p.Phases {
		ids = append(ids, ph.ID)
	}
	return ids
}

// RequiredCounts maps every phase to its required form count.
func (p *Program) RequiredCounts() map[PhaseID]int {
	counts := make(map[PhaseID]int, len(p.Phases))
	for _, ph := range p.Phases {
		counts[ph.ID] = ph.Total
	}
	return counts
}

// Dependencies returns a copy of the phase dependency map.
func (p *Program) Dependencies() DependencyMap {
	deps := make(DependencyMap, len(p.deps))
	for id, prereqs := range p.deps {
		deps[id] = append([]PhaseID(nil), prereqs...)
	}
	return deps
}

// IsAlwaysAccessible reports whether the phase bypasses its dependencies (addendum phases).
func (p *Program) IsAlwaysAccessible(id PhaseID) bool {
	ph, ok := p.Phase(id)
	if !ok {
		return false
	}
	return ph.AlwaysAccessible || (p.addendum != nil && p.addendum.MatchString(string(id)))
}

// IsAccessible reports whether a student who completed `completed` may enter phase `id`.
// Unknown phases are locked.
func (p *Program) IsAccessible(id PhaseID, completed PhaseSet) bool {
	if _, ok := p.index[id]; !ok {
		return false
	}
	if p.IsAlwaysAccessible(id) {
		return true
	}
	return IsAccessible(id, completed, p.deps)
}

// Progress aggregates submissions against the program, reporting phases in program order.
func (p *Program) Progress(submissions []FormSubmission) ProgressReport {
	reqs := make([]requirement, 0, len(p.Phases))
	for _, ph := range p.Phases {
		reqs = append(reqs, requirement{id: ph.ID, total: ph.Total})
	}
	return computeProgress(submissions, reqs)
}

// CompletedPhases returns the phases completed on counts plus the signed off ones.
func (p *Program) CompletedPhases(report ProgressReport, signedOff PhaseSet) PhaseSet {
	completed := make(PhaseSet, len(p.Phases))
	for _, pp := range report.Phases {
		if pp.IsComplete() {
			completed.Add(pp.PhaseID)
		}
	}
	for id := range signedOff {
		if _, ok := p.index[id]; ok {
			completed.Add(id)
		}
	}
	return completed
}

// Statuses resolves the state of every phase, in program order.
func (p *Program) Statuses(report ProgressReport, signedOff PhaseSet) []PhaseStatus {
	completed := p.CompletedPhases(report, signedOff)

	statuses := make([]PhaseStatus, 0, len(p.Phases))
	for _, ph := range p.Phases {
		pp := report.Phase(ph.ID)
		ps := PhaseStatus{
			ID:               ph.ID,
			Name:             ph.Name,
			Completed:        pp.Completed,
			Total:            ph.Total,
			Percentage:       pp.Percentage,
			SignedOff:        signedOff.Has(ph.ID),
			IsComplete:       completed.Has(ph.ID),
			AlwaysAccessible: p.IsAlwaysAccessible(ph.ID),
			Accessible:       p.IsAccessible(ph.ID, completed),
		}
		if !ps.Accessible {
			ps.MissingPrerequisites = MissingPrerequisites(ph.ID, completed, p.deps)
		}
		ps.State = ps.resolveState()
		statuses = append(statuses, ps)
	}
	return statuses
}

func joinIDs(ids []PhaseID, sep string) string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, string(id))
	}
	return strings.Join(strs, sep)
}

// CurrentPhase returns the phase the student should be working on, nil when the program is complete.
func (p *Program) CurrentPhase(report ProgressReport, signedOff PhaseSet) *PhaseStatus {
	return CurrentPhase(p.Statuses(report, signedOff))
}
