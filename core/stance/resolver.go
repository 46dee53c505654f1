// Package stance derives the rhetorical stance each simulated agent takes
// in a conversational cycle from the participant's experimental condition
// and initial opinion. Resolution is a pure function of (condition,
// initial stance, cycle); no state is carried between cycles.
package stance

import (
	"fmt"

	"github.com/adalundhe/sway/core/domain"
)

// Assignment maps the three agent slots to their resolved stances for one
// cycle. Resolved stances are always support or oppose; neutral never
// appears in an assignment.
type Assignment struct {
	Agent1 domain.Stance
	Agent2 domain.Stance
	Agent3 domain.Stance
}

// Slot returns the stance for agent slot n in 1..3.
func (a Assignment) Slot(n int) domain.Stance {
	switch n {
	case 1:
		return a.Agent1
	case 2:
		return a.Agent2
	case 3:
		return a.Agent3
	}
	return ""
}

// Stances returns the assignment as a slot-indexed slice.
func (a Assignment) Stances() []domain.Stance {
	return []domain.Stance{a.Agent1, a.Agent2, a.Agent3}
}

// Resolve computes the stance assignment for one cycle.
//
// majority: all three agents contradict the participant in every cycle.
//
// minority: agents 1 and 2 agree with the participant, agent 3 dissents,
// stable across all four cycles.
//
// minorityDiffusion: cycles 1-2 behave like minority; at cycle 3 agent 1
// joins the dissent, at cycle 4 agent 2 follows. Flips are monotonic
// within a session: once an agent dissents it never reverts.
//
// A neutral initial stance resolves to concrete instructions on both
// sides: dissenting agents oppose, agreeing agents support. Agents always
// receive a determinate stance.
func Resolve(cond domain.Condition, initial domain.Stance, cycle int) (Assignment, error) {
	if !domain.ValidCycle(cycle) {
		return Assignment{}, fmt.Errorf("cycle %d out of range [%d,%d]", cycle, domain.MinCycle, domain.MaxCycle)
	}
	if !initial.Valid() {
		return Assignment{}, fmt.Errorf("invalid initial stance %q", initial)
	}

	dissent := initial.Opposite()
	agree := initial
	if agree == domain.StanceNeutral {
		agree = dissent.Opposite()
	}

	switch cond {
	case domain.ConditionMajority:
		return Assignment{Agent1: dissent, Agent2: dissent, Agent3: dissent}, nil

	case domain.ConditionMinority:
		return Assignment{Agent1: agree, Agent2: agree, Agent3: dissent}, nil

	case domain.ConditionMinorityDiffusion:
		a := Assignment{Agent1: agree, Agent2: agree, Agent3: dissent}
		if cycle >= 3 {
			a.Agent1 = dissent
		}
		if cycle >= 4 {
			a.Agent2 = dissent
		}
		return a, nil
	}

	return Assignment{}, fmt.Errorf("unknown condition %q", cond)
}

// Flipped reports whether the agent in slot holds the dissenting stance at
// the given cycle but held the agreeing stance at the previous one. It is
// only ever true under minorityDiffusion, at the cycle an agent changes
// its mind.
func Flipped(cond domain.Condition, initial domain.Stance, cycle, slot int) bool {
	if cycle <= domain.MinCycle {
		return false
	}
	cur, err := Resolve(cond, initial, cycle)
	if err != nil {
		return false
	}
	prev, err := Resolve(cond, initial, cycle-1)
	if err != nil {
		return false
	}
	return cur.Slot(slot) != prev.Slot(slot)
}
