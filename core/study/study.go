// Package study manages the participant-level flow around the chat
// cycles: entry with a counterbalanced session order, session start and
// T0 capture, and completion marking. Condition assignment itself happens
// upstream; entry receives the condition already allocated.
package study

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/sway/core/domain"
	"github.com/adalundhe/sway/core/store"
)

// topics is the static task lookup per session.
var topics = map[domain.SessionKey]string{
	domain.SessionTest:        "introducing a four-day work week",
	domain.SessionNormative:   "introducing an unconditional basic income",
	domain.SessionInformative: "expanding nuclear energy production",
}

// TopicFor returns the discussion topic for a session key.
func TopicFor(key domain.SessionKey) string {
	return topics[key]
}

// Config configures a Study.
type Config struct {
	Store  *store.Store
	Logger *slog.Logger // Optional, uses slog.Default() if nil
}

// Study coordinates participant lifecycle against the store.
type Study struct {
	store   *store.Store
	logger  *slog.Logger
	entries atomic.Uint64
}

// New creates a Study.
func New(cfg Config) (*Study, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("study: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Study{store: cfg.Store, logger: cfg.Logger}, nil
}

// Enter creates a participant under the given condition. The test session
// always comes first; the two main sessions alternate order by entry
// parity to counterbalance sequence effects.
func (s *Study) Enter(cond domain.Condition) (*store.Participant, error) {
	if !cond.Valid() {
		return nil, fmt.Errorf("enter: invalid condition %q", cond)
	}

	order := []domain.SessionKey{domain.SessionTest, domain.SessionNormative, domain.SessionInformative}
	if s.entries.Add(1)%2 == 0 {
		order = []domain.SessionKey{domain.SessionTest, domain.SessionInformative, domain.SessionNormative}
	}

	p := &store.Participant{
		ID:        uuid.New().String(),
		Condition: cond,
		TaskOrder: order,
		CreatedAt: time.Now(),
	}

	if err := s.store.CreateParticipant(p); err != nil {
		return nil, err
	}

	s.logger.Info("participant entered",
		"participant_id", p.ID,
		"condition", string(cond),
	)
	return p, nil
}

// BeginSession creates the session row when the participant first reaches
// it and returns the current session state. Idempotent.
func (s *Study) BeginSession(participantID string, key domain.SessionKey) (*store.Session, error) {
	p, err := s.store.Participant(participantID)
	if err != nil {
		return nil, err
	}

	ordinal := -1
	for i, k := range p.TaskOrder {
		if k == key {
			ordinal = i + 1
			break
		}
	}
	if ordinal == -1 {
		return nil, fmt.Errorf("session %s not in participant %s task order", key, participantID)
	}

	if err := s.store.EnsureSession(participantID, key, ordinal, TopicFor(key)); err != nil {
		return nil, err
	}
	return s.store.Session(participantID, key)
}

// CaptureT0 records the initial opinion for a session, creating the
// session row if needed. Write-once; repeated captures keep the first
// value.
func (s *Study) CaptureT0(participantID string, key domain.SessionKey, value int) (*store.Session, error) {
	if _, err := s.BeginSession(participantID, key); err != nil {
		return nil, err
	}
	if err := s.store.RecordT0(participantID, key, value); err != nil {
		return nil, err
	}
	return s.store.Session(participantID, key)
}

// Progress returns the session state and the last fully answered cycle.
func (s *Study) Progress(participantID string, key domain.SessionKey) (*store.Session, int, error) {
	sess, err := s.store.Session(participantID, key)
	if err != nil {
		return nil, 0, err
	}
	last, err := s.store.LastResponseCycle(participantID, key)
	if err != nil {
		return nil, 0, err
	}
	return sess, last, nil
}

// Finish marks the participant finished once every session in their task
// order is completed. Returns true when the finish mark was applied or
// already present.
func (s *Study) Finish(participantID string) (bool, error) {
	p, err := s.store.Participant(participantID)
	if err != nil {
		return false, err
	}
	if p.FinishedAt != nil {
		return true, nil
	}

	for _, key := range p.TaskOrder {
		sess, err := s.store.Session(participantID, key)
		if err != nil || sess.CompletedAt == nil {
			return false, nil
		}
	}

	if err := s.store.FinishParticipant(participantID); err != nil {
		return false, err
	}
	s.logger.Info("participant finished", "participant_id", participantID)
	return true, nil
}
