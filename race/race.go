// Package race holds the horses and decides the winner.
//
// State is not safe for concurrent use. The controller is its only writer.
package race

import (
	"fmt"
)

// Entity is one horse: a fixed identity and the distance it has covered.
type Entity struct {
	Index    int
	Name     string
	Distance float64
}

// State owns every horse, the shared finish threshold and the winner slot.
// Once a winner is set the state is terminal: ApplyBlock no longer changes
// distances or the winner.
type State struct {
	entities  []Entity
	threshold float64
	winner    int
}

// NewState creates n horses at distance 0, named "Horse 01", "Horse 02", ...
func NewState(n int, threshold float64) (*State, error) {
	if n < 1 {
		return nil, fmt.Errorf("race needs at least one horse, got %d", n)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("finish threshold must be positive, got %v", threshold)
	}
	entities := make([]Entity, n)
	for i := range entities {
		entities[i] = Entity{Index: i, Name: HorseName(i)}
	}
	return &State{entities: entities, threshold: threshold, winner: -1}, nil
}

// HorseName returns the display name for index i (zero based).
func HorseName(i int) string {
	return fmt.Sprintf("Horse %02d", i+1)
}

// ApplyBlock advances every horse by paces[i]*multiplier, then scans the
// horses in index order and crowns the first one at or past the threshold.
//
// Every horse moves before the scan, so a block that finishes the race still
// records everyone's progress. Ties within a block go to the lowest index.
// It returns the winner index and true only on the call that set the winner.
func (s *State) ApplyBlock(paces []int, multiplier float64) (int, bool, error) {
	if s.winner >= 0 {
		return -1, false, nil
	}
	if len(paces) != len(s.entities) {
		return -1, false, fmt.Errorf("got %d paces for %d horses", len(paces), len(s.entities))
	}

	for i := range s.entities {
		s.entities[i].Distance += float64(paces[i]) * multiplier
	}

	for i := range s.entities {
		if s.entities[i].Distance >= s.threshold {
			s.winner = i
			return i, true, nil
		}
	}
	return -1, false, nil
}

// Winner returns the winning horse, if any.
func (s *State) Winner() (Entity, bool) {
	if s.winner < 0 {
		return Entity{}, false
	}
	return s.entities[s.winner], true
}

// Finished reports whether a winner has been set.
func (s *State) Finished() bool { return s.winner >= 0 }

// Threshold returns the finish distance.
func (s *State) Threshold() float64 { return s.threshold }

// Len returns the number of horses.
func (s *State) Len() int { return len(s.entities) }

// Snapshot returns a copy of every horse.
func (s *State) Snapshot() []Entity {
	out := make([]Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

// Distances returns a copy of every horse's distance in index order.
func (s *State) Distances() []float64 {
	out := make([]float64, len(s.entities))
	for i, e := range s.entities {
		out[i] = e.Distance
	}
	return out
}
