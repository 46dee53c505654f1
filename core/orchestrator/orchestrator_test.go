package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sway/core/domain"
	"github.com/adalundhe/sway/core/fallback"
	"github.com/adalundhe/sway/core/gateway"
	"github.com/adalundhe/sway/core/ratelimit"
	"github.com/adalundhe/sway/core/store"
)

// fakeStore is an in-memory TurnStore.
type fakeStore struct {
	mu          sync.Mutex
	participant *store.Participant
	session     *store.Session
	messages    map[int][]store.Message
	saveErr     error
	completed   bool
}

func newFakeStore(cond domain.Condition, t0 *int) *fakeStore {
	return &fakeStore{
		participant: &store.Participant{
			ID:        "p1",
			Condition: cond,
			TaskOrder: []domain.SessionKey{domain.SessionTest, domain.SessionNormative, domain.SessionInformative},
			CreatedAt: time.Now(),
		},
		session: &store.Session{
			ParticipantID: "p1",
			Key:           domain.SessionNormative,
			Ordinal:       2,
			Topic:         "introducing an unconditional basic income",
			T0:            t0,
		},
		messages: make(map[int][]store.Message),
	}
}

func (f *fakeStore) Participant(id string) (*store.Participant, error) {
	if id != f.participant.ID {
		return nil, fmt.Errorf("participant %s: not found", id)
	}
	return f.participant, nil
}

func (f *fakeStore) Session(participantID string, key domain.SessionKey) (*store.Session, error) {
	if key != f.session.Key {
		return nil, fmt.Errorf("session %s/%s: not found", participantID, key)
	}
	return f.session, nil
}

func (f *fakeStore) Messages(participantID string, key domain.SessionKey, cycle int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[cycle], nil
}

func (f *fakeStore) LastResponseCycle(participantID string, key domain.SessionKey) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	last := 0
	for cycle, msgs := range f.messages {
		agents := 0
		for _, m := range msgs {
			if m.Role != domain.RoleUser {
				agents++
			}
		}
		if agents == domain.AgentCount && cycle > last {
			last = cycle
		}
	}
	return last, nil
}

func (f *fakeStore) SaveTurn(turn *store.Turn, messages []store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return f.saveErr
	}
	f.messages[turn.Cycle] = append([]store.Message{}, messages...)
	return nil
}

func (f *fakeStore) CompleteSession(participantID string, key domain.SessionKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	return nil
}

// fakeGen scripts gateway results per slot.
type fakeGen struct {
	mu      sync.Mutex
	calls   int
	results map[int]gateway.Result
	delays  map[int]time.Duration
}

func newFakeGen() *fakeGen {
	return &fakeGen{
		results: map[int]gateway.Result{
			1: {Text: "reply from slot one", TokenIn: 100, TokenOut: 40, LatencyMs: 10},
			2: {Text: "reply from slot two", TokenIn: 110, TokenOut: 42, LatencyMs: 12},
			3: {Text: "reply from slot three", TokenIn: 120, TokenOut: 44, LatencyMs: 14},
		},
		delays: map[int]time.Duration{},
	}
}

func (f *fakeGen) Generate(ctx context.Context, system, user string, slot int) gateway.Result {
	f.mu.Lock()
	f.calls++
	delay := f.delays[slot]
	result := f.results[slot]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	return result
}

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func intPtr(v int) *int { return &v }

func newTestOrchestrator(t *testing.T, fs *fakeStore, fg *fakeGen, window time.Duration) *Orchestrator {
	t.Helper()

	pacer, err := ratelimit.New(ratelimit.Config{Window: window})
	require.NoError(t, err)
	t.Cleanup(pacer.Close)

	o, err := New(Config{Store: fs, Gateway: fg, Pacer: pacer})
	require.NoError(t, err)
	return o
}

func TestRunCycleHappyPath(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMinority, intPtr(25))
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	got, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "I support it.")
	require.NoError(t, err)

	assert.Equal(t, "reply from slot one", got.Agents[0].Content)
	assert.Equal(t, "reply from slot two", got.Agents[1].Content)
	assert.Equal(t, "reply from slot three", got.Agents[2].Content)
	for _, agent := range got.Agents {
		assert.False(t, agent.FallbackUsed)
	}

	// minority with positive T0: agents 1,2 support, agent 3 opposes.
	assert.Equal(t, []domain.Stance{domain.StanceSupport, domain.StanceSupport, domain.StanceOppose}, got.Meta.Stances)
	assert.Equal(t, 1, got.Meta.Cycle)
	assert.Equal(t, "p1", got.Meta.ParticipantID)

	// The turn was persisted: user message plus three agent messages.
	assert.Len(t, fs.messages[1], 4)
	assert.Equal(t, domain.AgentCount, fg.callCount())
}

func TestRunCycleIdempotent(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMajority, intPtr(-10))
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	first, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "my message")
	require.NoError(t, err)
	callsAfterFirst := fg.callCount()

	// Retry with a different user message still replays the stored cycle.
	second, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "a different message")
	require.NoError(t, err)

	assert.Equal(t, first.Agents, second.Agents)
	assert.Equal(t, callsAfterFirst, fg.callCount(), "replay must not invoke generation")
}

func TestRunCycleSequencing(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMajority, intPtr(5))
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	_, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 2, "too early")
	assert.ErrorIs(t, err, ErrSequence)
	assert.Zero(t, fg.callCount())

	time.Sleep(2 * time.Millisecond)
	_, err = o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "ok")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	_, err = o.RunCycle(context.Background(), "p1", domain.SessionNormative, 3, "skipping ahead")
	assert.ErrorIs(t, err, ErrSequence)
}

func TestRunCycleRequiresT0(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMinority, nil)
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	_, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "hello")
	assert.ErrorIs(t, err, ErrNoT0)
	assert.Zero(t, fg.callCount())
}

func TestRunCycleFallbackSubstitution(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMinority, intPtr(25))
	fg := newFakeGen()
	fg.results[2] = gateway.Result{TimedOut: true, LatencyMs: 30}
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	got, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "hello")
	require.NoError(t, err)

	// Slot 2 agrees under minority with a positive T0, so its fallback is
	// the support paragraph.
	assert.True(t, got.Agents[1].FallbackUsed)
	assert.Equal(t, fallback.ForStance(domain.StanceSupport), got.Agents[1].Content)

	assert.False(t, got.Agents[0].FallbackUsed)
	assert.False(t, got.Agents[2].FallbackUsed)

	// The fallback flag is persisted with the message.
	var persisted *store.Message
	for i, m := range fs.messages[1] {
		if m.Role == domain.RoleAgent2 {
			persisted = &fs.messages[1][i]
		}
	}
	require.NotNil(t, persisted)
	assert.True(t, persisted.FallbackUsed)
}

func TestRunCyclePersistenceFailureStillReturns(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMajority, intPtr(5))
	fs.saveErr = fmt.Errorf("disk on fire")
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	got, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply from slot one", got.Agents[0].Content)
}

func TestRunCycleRateLimited(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMajority, intPtr(5))
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Minute)

	_, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "hello")
	require.NoError(t, err)

	_, err = o.RunCycle(context.Background(), "p1", domain.SessionNormative, 2, "again immediately")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Replays bypass the pacer.
	replay, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply from slot one", replay.Agents[0].Content)
}

// Total orchestration latency is bounded by the slowest single agent, not
// the sum of the three.
func TestRunCycleConcurrentFanOut(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMinority, intPtr(25))
	fg := newFakeGen()
	fg.delays[1] = 150 * time.Millisecond
	fg.delays[2] = 150 * time.Millisecond
	fg.delays[3] = 150 * time.Millisecond
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	start := time.Now()
	_, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "hello")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 400*time.Millisecond,
		"three 150ms calls should overlap, not serialize")
}

// One slow agent must not hold up the other two slots' results, and the
// cycle still completes with all three agents populated.
func TestRunCycleSlowAgentIsolated(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMinority, intPtr(25))
	fg := newFakeGen()
	fg.delays[3] = 200 * time.Millisecond
	fg.results[3] = gateway.Result{TimedOut: true, LatencyMs: 200}
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	start := time.Now()
	got, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 1, "hello")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, "reply from slot one", got.Agents[0].Content)
	assert.Equal(t, "reply from slot two", got.Agents[1].Content)
	assert.True(t, got.Agents[2].FallbackUsed)
}

func TestRunCycleCompletesSessionAfterLastCycle(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMinorityDiffusion, intPtr(40))
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	for cycle := domain.MinCycle; cycle <= domain.MaxCycle; cycle++ {
		_, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, cycle, "message")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	assert.True(t, fs.completed)
}

func TestRunCycleValidatesInputs(t *testing.T) {
	t.Parallel()

	fs := newFakeStore(domain.ConditionMajority, intPtr(5))
	fg := newFakeGen()
	o := newTestOrchestrator(t, fs, fg, time.Millisecond)

	_, err := o.RunCycle(context.Background(), "p1", domain.SessionNormative, 0, "hello")
	assert.Error(t, err)

	_, err = o.RunCycle(context.Background(), "p1", domain.SessionNormative, 5, "hello")
	assert.Error(t, err)

	_, err = o.RunCycle(context.Background(), "p1", domain.SessionKey("main1"), 1, "hello")
	assert.Error(t, err, "legacy names are normalized at the boundary, not here")
}
