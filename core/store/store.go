// Package store is the persistence adapter for the experiment runner:
// participants, sessions, turns, and messages in a single sqlite
// database. Writes that can be retried by clients are idempotent
// (insert-if-absent keyed on the logical row), not locked.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/adalundhe/sway/core/domain"
)

// Config configures the store.
type Config struct {
	Path        string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	BusyTimeout time.Duration

	Logger *slog.Logger // Optional, uses slog.Default() if nil
}

// DefaultConfig returns the pool settings used in production.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		MaxOpen:     10,
		MaxIdle:     5,
		MaxLifetime: time.Hour,
		BusyTimeout: 30 * time.Second,
	}
}

// Store wraps the sqlite handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the database, applies the pool settings, and initializes the
// schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if cfg.MaxOpen == 0 {
		cfg.MaxOpen = 10
	}
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = 5
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = time.Hour
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=1",
		cfg.Path,
		int(cfg.BusyTimeout.Milliseconds()),
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Participant is a study participant with an immutable condition.
type Participant struct {
	ID         string
	Condition  domain.Condition
	TaskOrder  []domain.SessionKey
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// Session is one scoped conversational context for a participant.
type Session struct {
	ParticipantID string
	Key           domain.SessionKey
	Ordinal       int
	Topic         string
	T0            *int
	CycleCount    int
	CompletedAt   *time.Time
}

// Turn holds the participant's message for one cycle.
type Turn struct {
	ParticipantID string
	SessionKey    domain.SessionKey
	Cycle         int
	UserMessage   string
	CreatedAt     time.Time
}

// Message is one persisted utterance within a turn. Append-only.
type Message struct {
	ID            string
	ParticipantID string
	SessionKey    domain.SessionKey
	Cycle         int
	Role          domain.Role
	Content       string
	LatencyMs     int64
	TokenIn       int
	TokenOut      int
	FallbackUsed  bool
	CreatedAt     time.Time
}

// CreateParticipant inserts a participant row. The condition never
// changes after this write.
func (s *Store) CreateParticipant(p *Participant) error {
	if !p.Condition.Valid() {
		return fmt.Errorf("create participant: invalid condition %q", p.Condition)
	}

	order := make([]string, len(p.TaskOrder))
	for i, k := range p.TaskOrder {
		order[i] = string(k)
	}

	_, err := s.db.Exec(`
		INSERT INTO participants (id, condition, task_order, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, string(p.Condition), strings.Join(order, ","), p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// Participant loads a participant by id.
func (s *Store) Participant(id string) (*Participant, error) {
	row := s.db.QueryRow(`
		SELECT id, condition, task_order, created_at, finished_at
		FROM participants WHERE id = ?`, id)

	var p Participant
	var cond, order string
	var createdAt int64
	var finishedAt sql.NullInt64

	if err := row.Scan(&p.ID, &cond, &order, &createdAt, &finishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("participant %s: not found", id)
		}
		return nil, fmt.Errorf("load participant: %w", err)
	}

	p.Condition = domain.Condition(cond)
	p.CreatedAt = time.UnixMilli(createdAt)
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		p.FinishedAt = &t
	}
	for _, k := range strings.Split(order, ",") {
		if k != "" {
			p.TaskOrder = append(p.TaskOrder, domain.SessionKey(k))
		}
	}

	return &p, nil
}

// FinishParticipant marks the participant finished. Safe to call twice;
// the first timestamp wins.
func (s *Store) FinishParticipant(id string) error {
	_, err := s.db.Exec(`
		UPDATE participants SET finished_at = ?
		WHERE id = ? AND finished_at IS NULL`,
		time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("finish participant: %w", err)
	}
	return nil
}

// EnsureSession creates the session row when the participant first
// reaches it. Idempotent.
func (s *Store) EnsureSession(participantID string, key domain.SessionKey, ordinal int, topic string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO sessions (participant_id, session_key, ordinal, topic, cycle_count)
		VALUES (?, ?, ?, ?, 0)`,
		participantID, string(key), ordinal, topic,
	)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// Session loads a session row.
func (s *Store) Session(participantID string, key domain.SessionKey) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT participant_id, session_key, ordinal, topic, t0_value, cycle_count, completed_at
		FROM sessions WHERE participant_id = ? AND session_key = ?`,
		participantID, string(key),
	)

	var sess Session
	var k string
	var t0 sql.NullInt64
	var completedAt sql.NullInt64

	if err := row.Scan(&sess.ParticipantID, &k, &sess.Ordinal, &sess.Topic, &t0, &sess.CycleCount, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s/%s: not found", participantID, key)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.Key = domain.SessionKey(k)
	if t0.Valid {
		v := int(t0.Int64)
		sess.T0 = &v
	}
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		sess.CompletedAt = &t
	}

	return &sess, nil
}

// RecordT0 captures the initial opinion for a session. Write-once: a
// second call is a no-op and the stored value stands.
func (s *Store) RecordT0(participantID string, key domain.SessionKey, value int) error {
	if !domain.ValidOpinion(value) {
		return fmt.Errorf("record t0: value %d out of range [%d,%d]", value, domain.MinOpinion, domain.MaxOpinion)
	}

	_, err := s.db.Exec(`
		UPDATE sessions SET t0_value = ?
		WHERE participant_id = ? AND session_key = ? AND t0_value IS NULL`,
		value, participantID, string(key),
	)
	if err != nil {
		return fmt.Errorf("record t0: %w", err)
	}
	return nil
}

// T0 returns the initial opinion for a session and whether it exists.
func (s *Store) T0(participantID string, key domain.SessionKey) (int, bool, error) {
	row := s.db.QueryRow(`
		SELECT t0_value FROM sessions
		WHERE participant_id = ? AND session_key = ?`,
		participantID, string(key),
	)

	var t0 sql.NullInt64
	if err := row.Scan(&t0); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load t0: %w", err)
	}
	if !t0.Valid {
		return 0, false, nil
	}
	return int(t0.Int64), true, nil
}

// SaveTurn persists a turn and its messages in one transaction. Every
// insert is keyed on the logical row, so re-running after a partial
// failure never duplicates.
func (s *Store) SaveTurn(turn *Turn, messages []Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO turns (participant_id, session_key, cycle, user_message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		turn.ParticipantID, string(turn.SessionKey), turn.Cycle, turn.UserMessage, turn.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("save turn: %w", err)
	}

	for _, m := range messages {
		id := m.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO messages
				(id, participant_id, session_key, cycle, role, content,
				 latency_ms, token_in, token_out, fallback_used, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, m.ParticipantID, string(m.SessionKey), m.Cycle, string(m.Role), m.Content,
			m.LatencyMs, m.TokenIn, m.TokenOut, boolToInt(m.FallbackUsed), m.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("save message %s: %w", m.Role, err)
		}
	}

	if _, err := tx.Exec(`
		UPDATE sessions SET cycle_count = MAX(cycle_count, ?)
		WHERE participant_id = ? AND session_key = ?`,
		turn.Cycle, turn.ParticipantID, string(turn.SessionKey),
	); err != nil {
		return fmt.Errorf("advance cycle count: %w", err)
	}

	return tx.Commit()
}

// Messages returns the messages for one (participant, session, cycle),
// ordered by role: agents by slot, then the user message.
func (s *Store) Messages(participantID string, key domain.SessionKey, cycle int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, participant_id, session_key, cycle, role, content,
		       latency_ms, token_in, token_out, fallback_used, created_at
		FROM messages
		WHERE participant_id = ? AND session_key = ? AND cycle = ?
		ORDER BY role`,
		participantID, string(key), cycle,
	)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		var k, role string
		var fallbackUsed int
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.ParticipantID, &k, &m.Cycle, &role, &m.Content,
			&m.LatencyMs, &m.TokenIn, &m.TokenOut, &fallbackUsed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		m.SessionKey = domain.SessionKey(k)
		m.Role = domain.Role(role)
		m.FallbackUsed = fallbackUsed != 0
		m.CreatedAt = time.UnixMilli(createdAt)
		result = append(result, m)
	}

	return result, rows.Err()
}

// LastResponseCycle returns the highest cycle for which all three agent
// responses are recorded, or 0 when none are.
func (s *Store) LastResponseCycle(participantID string, key domain.SessionKey) (int, error) {
	row := s.db.QueryRow(`
		SELECT COALESCE(MAX(cycle), 0) FROM (
			SELECT cycle FROM messages
			WHERE participant_id = ? AND session_key = ?
			  AND role IN ('agent1', 'agent2', 'agent3')
			GROUP BY cycle
			HAVING COUNT(DISTINCT role) = 3
		)`,
		participantID, string(key),
	)

	var cycle int
	if err := row.Scan(&cycle); err != nil {
		return 0, fmt.Errorf("last response cycle: %w", err)
	}
	return cycle, nil
}

// CompleteSession stamps the session completion time. The first stamp
// wins.
func (s *Store) CompleteSession(participantID string, key domain.SessionKey) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET completed_at = ?
		WHERE participant_id = ? AND session_key = ? AND completed_at IS NULL`,
		time.Now().UnixMilli(), participantID, string(key),
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
