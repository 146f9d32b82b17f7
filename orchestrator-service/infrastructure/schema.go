package infrastructure

// Schema creates the saga state store tables. Step outcomes are persisted
// with conditional updates, and the partial unique index stops a second
// PENDING step from being created for the same saga.
const Schema = `
CREATE TABLE IF NOT EXISTS sagas (
	id             UUID PRIMARY KEY,
	saga_type      TEXT        NOT NULL,
	payload        JSONB       NOT NULL DEFAULT '{}'::jsonb,
	state          TEXT        NOT NULL,
	version        INTEGER     NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ,
	compensated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS sagas_by_state ON sagas (state, updated_at);

CREATE TABLE IF NOT EXISTS saga_steps (
	saga_id        UUID        NOT NULL REFERENCES sagas (id),
	sequence       INTEGER     NOT NULL CHECK (sequence > 0),
	name           TEXT        NOT NULL,
	status         TEXT        NOT NULL,
	result         JSONB,
	error          TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	dispatched_at  TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	failed_at      TIMESTAMPTZ,
	compensated_at TIMESTAMPTZ,
	PRIMARY KEY (saga_id, sequence)
);

CREATE UNIQUE INDEX IF NOT EXISTS one_pending_step_per_saga ON saga_steps (saga_id) WHERE status = 'PENDING';
`
