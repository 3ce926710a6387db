package database

// rooms and room_participants are written by the event service. They are
// declared here so a fresh database can serve chat on its own.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id   TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS room_pseudonyms (
		room_id     TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL,
		assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (room_id, user_id),
		UNIQUE (room_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id                        TEXT PRIMARY KEY,
		seq                       BIGSERIAL UNIQUE,
		room_id                   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_id                 TEXT NOT NULL,
		body_ciphertext           TEXT NOT NULL,
		body_iv                   TEXT NOT NULL,
		body_tag                  TEXT,
		attachment_path_ciphertext     TEXT,
		attachment_path_iv             TEXT,
		attachment_path_tag            TEXT,
		attachment_filename_ciphertext TEXT,
		attachment_filename_iv         TEXT,
		attachment_filename_tag        TEXT,
		attachment_file_type      TEXT,
		attachment_size           BIGINT,
		status                    TEXT NOT NULL DEFAULT 'sent',
		is_edited                 BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted                BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at                TIMESTAMPTZ,
		created_at                TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at, seq)`,
	`CREATE TABLE IF NOT EXISTS message_edits (
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		seq        BIGSERIAL,
		ciphertext TEXT NOT NULL,
		iv         TEXT NOT NULL,
		tag        TEXT NOT NULL,
		edited_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		seq        BIGSERIAL,
		user_id    TEXT NOT NULL,
		emoji      TEXT NOT NULL,
		pseudonym  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, seq),
		UNIQUE (message_id, user_id, emoji)
	)`,
}
