package orchestrator

import (
	"context"
	"errors"

	"github.com/adalundhe/sway/core/domain"
	"github.com/adalundhe/sway/core/gateway"
	"github.com/adalundhe/sway/core/store"
)

// Sentinel errors surfaced to the page layer. Generation and persistence
// failures are absorbed and never appear here.
var (
	// ErrSequence means a cycle was requested before its predecessor's
	// response was recorded.
	ErrSequence = errors.New("previous cycle response not recorded")

	// ErrNoT0 means the session's initial opinion has not been captured.
	ErrNoT0 = errors.New("initial opinion not captured for session")

	// ErrRateLimited means the request arrived inside the pacing window
	// and was rejected, not queued.
	ErrRateLimited = errors.New("cycle requests too close together")
)

// TurnStore is the slice of the persistence adapter the orchestrator
// consumes.
type TurnStore interface {
	Participant(id string) (*store.Participant, error)
	Session(participantID string, key domain.SessionKey) (*store.Session, error)
	Messages(participantID string, key domain.SessionKey, cycle int) ([]store.Message, error)
	LastResponseCycle(participantID string, key domain.SessionKey) (int, error)
	SaveTurn(turn *store.Turn, messages []store.Message) error
	CompleteSession(participantID string, key domain.SessionKey) error
}

// Generator is the slice of the generation gateway the orchestrator
// consumes.
type Generator interface {
	Generate(ctx context.Context, system, user string, slot int) gateway.Result
}

// AgentResult is one agent's contribution to a cycle.
type AgentResult struct {
	Content      string `json:"content"`
	LatencyMs    int64  `json:"latency_ms"`
	TokenIn      int    `json:"token_in"`
	TokenOut     int    `json:"token_out"`
	FallbackUsed bool   `json:"fallback_used"`
}

// Meta describes the cycle the results belong to.
type Meta struct {
	Cycle         int               `json:"cycle"`
	SessionKey    domain.SessionKey `json:"session_key"`
	ParticipantID string            `json:"participant_id"`
	Stances       []domain.Stance   `json:"stances"`
	Latencies     []int64           `json:"latencies"`
}

// CycleResult is the structured outcome of one conversational cycle.
type CycleResult struct {
	Agents [domain.AgentCount]AgentResult `json:"agents"`
	Meta   Meta                           `json:"meta"`
}
