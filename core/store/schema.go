package store

const schema = `
CREATE TABLE IF NOT EXISTS participants (
	id          TEXT PRIMARY KEY,
	condition   TEXT NOT NULL,
	task_order  TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS sessions (
	participant_id TEXT NOT NULL REFERENCES participants(id),
	session_key    TEXT NOT NULL,
	ordinal        INTEGER NOT NULL,
	topic          TEXT NOT NULL,
	t0_value       INTEGER,
	cycle_count    INTEGER NOT NULL DEFAULT 0,
	completed_at   INTEGER,
	PRIMARY KEY (participant_id, session_key)
);

CREATE TABLE IF NOT EXISTS turns (
	participant_id TEXT NOT NULL,
	session_key    TEXT NOT NULL,
	cycle          INTEGER NOT NULL,
	user_message   TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	PRIMARY KEY (participant_id, session_key, cycle),
	FOREIGN KEY (participant_id, session_key) REFERENCES sessions(participant_id, session_key)
);

CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	participant_id TEXT NOT NULL,
	session_key    TEXT NOT NULL,
	cycle          INTEGER NOT NULL,
	role           TEXT NOT NULL,
	content        TEXT NOT NULL,
	latency_ms     INTEGER NOT NULL DEFAULT 0,
	token_in       INTEGER NOT NULL DEFAULT 0,
	token_out      INTEGER NOT NULL DEFAULT 0,
	fallback_used  INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL,
	UNIQUE (participant_id, session_key, cycle, role)
);

CREATE INDEX IF NOT EXISTS idx_messages_turn
	ON messages (participant_id, session_key, cycle);
`
