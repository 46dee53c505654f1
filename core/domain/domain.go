// Package domain defines the closed enumerations shared across the
// experiment runner: experimental condition, rhetorical stance, session
// key, and the cycle/opinion ranges.
package domain

import "fmt"

// Condition is the experimental-group assignment controlling which stance
// pattern the three simulated agents follow. It is fixed for the lifetime
// of a participant and consumed only by the stance resolver; every other
// component sees resolved stances.
type Condition string

const (
	ConditionMajority          Condition = "majority"
	ConditionMinority          Condition = "minority"
	ConditionMinorityDiffusion Condition = "minorityDiffusion"
)

// ParseCondition returns the Condition for s or an error for anything
// outside the three experimental groups.
func ParseCondition(s string) (Condition, error) {
	switch Condition(s) {
	case ConditionMajority, ConditionMinority, ConditionMinorityDiffusion:
		return Condition(s), nil
	}
	return "", fmt.Errorf("unknown condition %q", s)
}

// Valid reports whether c is one of the three experimental groups.
func (c Condition) Valid() bool {
	switch c {
	case ConditionMajority, ConditionMinority, ConditionMinorityDiffusion:
		return true
	}
	return false
}

// Stance is the rhetorical position an agent or participant holds on the
// session topic.
type Stance string

const (
	StanceSupport Stance = "support"
	StanceOppose  Stance = "oppose"
	StanceNeutral Stance = "neutral"
)

// Opposite flips support and oppose. Neutral has no opposite; the system
// treats oppose as the counter-stance for a neutral starting point, so a
// participant with no opinion still faces a determinate dissenting group.
func (s Stance) Opposite() Stance {
	switch s {
	case StanceSupport:
		return StanceOppose
	case StanceOppose:
		return StanceSupport
	default:
		return StanceOppose
	}
}

// Valid reports whether s is one of the three stances.
func (s Stance) Valid() bool {
	switch s {
	case StanceSupport, StanceOppose, StanceNeutral:
		return true
	}
	return false
}

// Opinion bounds for the T0 capture.
const (
	MinOpinion = -50
	MaxOpinion = 50
)

// ValidOpinion reports whether v lies in the T0 capture range.
func ValidOpinion(v int) bool {
	return v >= MinOpinion && v <= MaxOpinion
}

// StanceFromOpinion maps a raw T0 value to a stance by sign: strictly
// positive is support, strictly negative is oppose, zero is neutral.
func StanceFromOpinion(v int) Stance {
	switch {
	case v > 0:
		return StanceSupport
	case v < 0:
		return StanceOppose
	default:
		return StanceNeutral
	}
}

// SessionKey identifies one of the three scoped conversational contexts.
// The two counterbalanced main sessions carry legacy spellings (main1,
// main2) that are accepted on parse and mapped to the canonical names.
type SessionKey string

const (
	SessionTest        SessionKey = "test"
	SessionNormative   SessionKey = "normative"
	SessionInformative SessionKey = "informative"
)

// ParseSessionKey accepts both the canonical names and the legacy
// main1/main2 spellings.
func ParseSessionKey(s string) (SessionKey, error) {
	switch s {
	case string(SessionTest):
		return SessionTest, nil
	case string(SessionNormative), "main1":
		return SessionNormative, nil
	case string(SessionInformative), "main2":
		return SessionInformative, nil
	}
	return "", fmt.Errorf("unknown session key %q", s)
}

// Valid reports whether k is one of the three canonical session keys.
func (k SessionKey) Valid() bool {
	switch k {
	case SessionTest, SessionNormative, SessionInformative:
		return true
	}
	return false
}

// Cycle bounds. Each session runs exactly four conversational cycles
// after the T0 capture.
const (
	MinCycle = 1
	MaxCycle = 4
)

// ValidCycle reports whether n is a cycle index.
func ValidCycle(n int) bool {
	return n >= MinCycle && n <= MaxCycle
}

// AgentCount is the number of simulated agents per cycle.
const AgentCount = 3

// Role identifies the author of a persisted message within a turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent1 Role = "agent1"
	RoleAgent2 Role = "agent2"
	RoleAgent3 Role = "agent3"
)

// AgentRole returns the message role for an agent slot in 1..3.
func AgentRole(slot int) Role {
	switch slot {
	case 1:
		return RoleAgent1
	case 2:
		return RoleAgent2
	case 3:
		return RoleAgent3
	}
	return ""
}
