// Package orchestrator coordinates one conversational cycle: stance
// resolution, prompt construction, a three-way concurrent generation
// fan-out with per-agent fallback, and idempotent persistence of the
// turn.
//
// The response is computed first and recorded after: a crash between the
// two loses the message rows but never the participant-visible reply.
// The alternative ordering (write the turn before dispatch, patch it
// afterward) would close that gap at the cost of added latency on every
// cycle; this implementation keeps the availability-first ordering.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adalundhe/sway/core/domain"
	"github.com/adalundhe/sway/core/fallback"
	"github.com/adalundhe/sway/core/prompt"
	"github.com/adalundhe/sway/core/ratelimit"
	"github.com/adalundhe/sway/core/stance"
	"github.com/adalundhe/sway/core/store"
)

// Config configures an Orchestrator.
type Config struct {
	Store   TurnStore
	Gateway Generator
	Pacer   *ratelimit.Pacer // Optional, a default-window pacer is created if nil
	Logger  *slog.Logger     // Optional, uses slog.Default() if nil
}

// Orchestrator runs conversational cycles.
type Orchestrator struct {
	store   TurnStore
	gateway Generator
	pacer   *ratelimit.Pacer
	logger  *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("orchestrator: gateway is required")
	}
	if cfg.Pacer == nil {
		pacer, err := ratelimit.New(ratelimit.Config{})
		if err != nil {
			return nil, err
		}
		cfg.Pacer = pacer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		store:   cfg.Store,
		gateway: cfg.Gateway,
		pacer:   cfg.Pacer,
		logger:  cfg.Logger,
	}, nil
}

// RunCycle executes one conversational cycle for a participant session.
//
// An already-answered cycle is replayed verbatim from the store without
// touching the generation backend, so client retries are safe. A cycle
// whose predecessor has no recorded response is rejected with
// ErrSequence; a session without T0 with ErrNoT0. Generation failures
// never surface: each failed agent slot gets its stance's canned
// fallback.
func (o *Orchestrator) RunCycle(ctx context.Context, participantID string, key domain.SessionKey, cycle int, userMessage string) (*CycleResult, error) {
	if !domain.ValidCycle(cycle) {
		return nil, fmt.Errorf("cycle %d out of range [%d,%d]", cycle, domain.MinCycle, domain.MaxCycle)
	}
	if !key.Valid() {
		return nil, fmt.Errorf("invalid session key %q", key)
	}

	p, err := o.store.Participant(participantID)
	if err != nil {
		return nil, err
	}

	sess, err := o.store.Session(participantID, key)
	if err != nil {
		return nil, err
	}
	if sess.T0 == nil {
		return nil, ErrNoT0
	}
	t0 := *sess.T0
	initial := domain.StanceFromOpinion(t0)

	assignment, err := stance.Resolve(p.Condition, initial, cycle)
	if err != nil {
		return nil, err
	}

	// At-most-once generation: an answered cycle is served from the store.
	if replay, err := o.replay(participantID, key, cycle, assignment); err != nil {
		return nil, err
	} else if replay != nil {
		o.logger.Debug("cycle replayed from store",
			"participant_id", participantID,
			"session_key", string(key),
			"cycle", cycle,
		)
		return replay, nil
	}

	if d := o.pacer.Allow(participantID, string(key)); !d.Allowed {
		return nil, fmt.Errorf("%w: retry in %s", ErrRateLimited, d.WaitTime.Round(time.Millisecond))
	}

	last, err := o.store.LastResponseCycle(participantID, key)
	if err != nil {
		return nil, err
	}
	if last < cycle-1 {
		return nil, fmt.Errorf("%w: cycle %d requested, last answered %d", ErrSequence, cycle, last)
	}

	history, err := o.loadHistory(participantID, key, cycle)
	if err != nil {
		return nil, err
	}

	result := o.generate(ctx, p, sess, cycle, assignment, t0, initial, history, userMessage)
	o.persist(participantID, key, cycle, userMessage, result)

	return result, nil
}

// replay rebuilds the cycle result from stored messages, or returns nil
// when the cycle has not been fully answered yet.
func (o *Orchestrator) replay(participantID string, key domain.SessionKey, cycle int, assignment stance.Assignment) (*CycleResult, error) {
	messages, err := o.store.Messages(participantID, key, cycle)
	if err != nil {
		return nil, err
	}

	byRole := make(map[domain.Role]store.Message, len(messages))
	for _, m := range messages {
		byRole[m.Role] = m
	}

	result := &CycleResult{
		Meta: Meta{
			Cycle:         cycle,
			SessionKey:    key,
			ParticipantID: participantID,
			Stances:       assignment.Stances(),
			Latencies:     make([]int64, domain.AgentCount),
		},
	}

	for slot := 1; slot <= domain.AgentCount; slot++ {
		m, ok := byRole[domain.AgentRole(slot)]
		if !ok {
			return nil, nil
		}
		result.Agents[slot-1] = AgentResult{
			Content:      m.Content,
			LatencyMs:    m.LatencyMs,
			TokenIn:      m.TokenIn,
			TokenOut:     m.TokenOut,
			FallbackUsed: m.FallbackUsed,
		}
		result.Meta.Latencies[slot-1] = m.LatencyMs
	}

	return result, nil
}

func (o *Orchestrator) loadHistory(participantID string, key domain.SessionKey, cycle int) ([]prompt.Exchange, error) {
	var history []prompt.Exchange

	for c := domain.MinCycle; c < cycle; c++ {
		messages, err := o.store.Messages(participantID, key, c)
		if err != nil {
			return nil, err
		}

		ex := prompt.Exchange{Cycle: c}
		for _, m := range messages {
			switch m.Role {
			case domain.RoleUser:
				ex.UserMessage = m.Content
			case domain.RoleAgent1:
				ex.AgentReplies[0] = m.Content
			case domain.RoleAgent2:
				ex.AgentReplies[1] = m.Content
			case domain.RoleAgent3:
				ex.AgentReplies[2] = m.Content
			}
		}
		history = append(history, ex)
	}

	return history, nil
}

// generate fans the three agent calls out concurrently and merges the
// settled results, substituting fallbacks for empty or timed-out slots.
// The branches share nothing but their own result slot; total latency is
// bounded by the slowest single call, not the sum.
func (o *Orchestrator) generate(
	ctx context.Context,
	p *store.Participant,
	sess *store.Session,
	cycle int,
	assignment stance.Assignment,
	t0 int,
	initial domain.Stance,
	history []prompt.Exchange,
	userMessage string,
) *CycleResult {
	key := sess.Key
	result := &CycleResult{
		Meta: Meta{
			Cycle:         cycle,
			SessionKey:    key,
			ParticipantID: p.ID,
			Stances:       assignment.Stances(),
			Latencies:     make([]int64, domain.AgentCount),
		},
	}

	var wg sync.WaitGroup
	for slot := 1; slot <= domain.AgentCount; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()

			agentStance := assignment.Slot(slot)
			instructions := prompt.Build(prompt.BuildInput{
				Slot:           slot,
				Stance:         agentStance,
				Condition:      p.Condition,
				SessionKey:     key,
				Cycle:          cycle,
				Topic:          sess.Topic,
				InitialStance:  initial,
				InitialOpinion: t0,
				History:        history,
				UserMessage:    userMessage,
			})

			gen := o.gateway.Generate(ctx, instructions.System, instructions.User, slot)

			agent := AgentResult{
				Content:   gen.Text,
				LatencyMs: gen.LatencyMs,
				TokenIn:   gen.TokenIn,
				TokenOut:  gen.TokenOut,
			}
			if gen.Text == "" {
				agent.Content = fallback.ForStance(agentStance)
				agent.FallbackUsed = true
				o.logger.Warn("agent fell back to canned response",
					"participant_id", p.ID,
					"session_key", string(key),
					"cycle", cycle,
					"slot", slot,
					"timed_out", gen.TimedOut,
				)
			}

			result.Agents[slot-1] = agent
			result.Meta.Latencies[slot-1] = gen.LatencyMs
		}(slot)
	}
	wg.Wait()

	return result
}

// persist records the turn and its four messages. Best effort: failures
// are logged and the in-memory result stays authoritative for the reply.
func (o *Orchestrator) persist(participantID string, key domain.SessionKey, cycle int, userMessage string, result *CycleResult) {
	now := time.Now()

	turn := &store.Turn{
		ParticipantID: participantID,
		SessionKey:    key,
		Cycle:         cycle,
		UserMessage:   userMessage,
		CreatedAt:     now,
	}

	messages := []store.Message{
		{
			ParticipantID: participantID,
			SessionKey:    key,
			Cycle:         cycle,
			Role:          domain.RoleUser,
			Content:       userMessage,
			CreatedAt:     now,
		},
	}
	for slot := 1; slot <= domain.AgentCount; slot++ {
		agent := result.Agents[slot-1]
		messages = append(messages, store.Message{
			ParticipantID: participantID,
			SessionKey:    key,
			Cycle:         cycle,
			Role:          domain.AgentRole(slot),
			Content:       agent.Content,
			LatencyMs:     agent.LatencyMs,
			TokenIn:       agent.TokenIn,
			TokenOut:      agent.TokenOut,
			FallbackUsed:  agent.FallbackUsed,
			CreatedAt:     now,
		})
	}

	if err := o.store.SaveTurn(turn, messages); err != nil {
		o.logger.Error("turn persistence failed, returning in-memory result",
			"participant_id", participantID,
			"session_key", string(key),
			"cycle", cycle,
			"error", err,
		)
		return
	}

	if cycle == domain.MaxCycle {
		if err := o.store.CompleteSession(participantID, key); err != nil {
			o.logger.Error("session completion failed",
				"participant_id", participantID,
				"session_key", string(key),
				"error", err,
			)
		}
	}
}
