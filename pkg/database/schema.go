package database

// Schema is the postgres schema used by the token, device and event stores
const Schema = `
CREATE TABLE IF NOT EXISTS device (
	id              UUID PRIMARY KEY,
	account_id      UUID NOT NULL,
	fingerprint     TEXT NOT NULL,
	status          SMALLINT NOT NULL,
	credential_hash BYTEA NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	revoked_at      TIMESTAMPTZ NULL
);

CREATE INDEX IF NOT EXISTS device_account_idx ON device(account_id);

CREATE TABLE IF NOT EXISTS enrollment_token (
	hash        BYTEA PRIMARY KEY,
	issuer      TEXT NOT NULL,
	account_id  UUID NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	expire_at   TIMESTAMPTZ NOT NULL,
	consumed_at TIMESTAMPTZ NULL,
	device_id   UUID NULL
);

CREATE TABLE IF NOT EXISTS event (
	id           TEXT PRIMARY KEY,
	device_id    UUID NOT NULL,
	account_id   UUID NOT NULL,
	kind         TEXT NOT NULL,
	severity     TEXT NOT NULL,
	score        DOUBLE PRECISION NULL,
	out_of_order BOOLEAN NOT NULL,
	fingerprint  TEXT NOT NULL,
	payload      JSONB NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL,
	received_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS event_device_idx ON event(device_id, id DESC);
`
