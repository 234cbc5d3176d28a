package database

const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email         TEXT NOT NULL UNIQUE,
	username      TEXT NOT NULL,
	avatar_url    TEXT,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS servers (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	icon_url   TEXT,
	owner_id   TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS server_members (
	server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role      TEXT NOT NULL DEFAULT 'MEMBER',
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (server_id, user_id)
);

CREATE TABLE IF NOT EXISTS server_bans (
	server_id  TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_by TEXT NOT NULL REFERENCES users(id),
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (server_id, user_id)
);

CREATE TABLE IF NOT EXISTS channels (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	type      TEXT NOT NULL DEFAULT 'TEXT',
	min_role  TEXT NOT NULL DEFAULT 'MEMBER'
);

CREATE TABLE IF NOT EXISTS invites (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	code       TEXT NOT NULL UNIQUE,
	server_id  TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	max_uses   INTEGER,
	uses       INTEGER NOT NULL DEFAULT 0,
	expires_at TIMESTAMPTZ,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS direct_threads (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS direct_members (
	thread_id TEXT NOT NULL REFERENCES direct_threads(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (thread_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	author_id  TEXT NOT NULL REFERENCES users(id),
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	edited_at  TIMESTAMPTZ,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS message_reactions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	emoji      TEXT NOT NULL,
	UNIQUE (message_id, user_id, emoji)
);

CREATE TABLE IF NOT EXISTS direct_messages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	thread_id  TEXT NOT NULL REFERENCES direct_threads(id) ON DELETE CASCADE,
	author_id  TEXT NOT NULL REFERENCES users(id),
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	edited_at  TIMESTAMPTZ,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS direct_message_reactions (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	direct_message_id TEXT NOT NULL REFERENCES direct_messages(id) ON DELETE CASCADE,
	user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	emoji             TEXT NOT NULL,
	UNIQUE (direct_message_id, user_id, emoji)
);
`
