package training

import "sort"

// PhaseSet is a set of phase IDs, eg. the phases a student has completed.
type PhaseSet map[PhaseID]struct{}

func NewPhaseSet(ids ...PhaseID) PhaseSet {
	set := make(PhaseSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s PhaseSet) Has(id PhaseID) bool {
	_, ok := s[id]
	return ok
}

func (s PhaseSet) Add(id PhaseID) {
	s[id] = struct{}{}
}

// Sorted returns the IDs of the set in lexical order.
func (s PhaseSet) Sorted() []PhaseID {
	ids := make([]PhaseID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DependencyMap maps a phase to the phases that must be completed before it unlocks.
type DependencyMap map[PhaseID][]PhaseID

// IsAccessible reports whether phase `id` is unlocked given the completed phases.
// A phase with no (or an empty) entry in deps is always accessible,
// otherwise every one of its prerequisites must be completed.
func IsAccessible(id PhaseID, completed PhaseSet, deps DependencyMap) bool {
	for _, prereq := range deps[id] {
		if !completed.Has(prereq) {
			return false
		}
	}
	return true
}

// MissingPrerequisites lists the prerequisites of `id` that are not completed yet, in dependency order.
func MissingPrerequisites(id PhaseID, completed PhaseSet, deps DependencyMap) []PhaseID {
	var missing []PhaseID
	for _, prereq := range deps[id] {
		if !completed.Has(prereq) {
			missing = append(missing, prereq)
		}
	}
	return missing
}
