package postgres

// schema is applied idempotently on connect. The one-primary-per-holder
// invariant is enforced by the write paths, not the DDL, because the primary
// flag lives on the (possibly co-owned) sub-account.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          BIGSERIAL PRIMARY KEY,
	holder_name TEXT        NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sub_accounts (
	id          BIGSERIAL PRIMARY KEY,
	number      TEXT           NOT NULL UNIQUE,
	bank_name   TEXT           NOT NULL,
	balance     NUMERIC(18, 2) NOT NULL DEFAULT 0,
	is_primary  BOOLEAN        NOT NULL DEFAULT FALSE,
	is_verified BOOLEAN        NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ    NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sub_account_holders (
	sub_account_id BIGINT NOT NULL REFERENCES sub_accounts (id),
	account_id     BIGINT NOT NULL REFERENCES accounts (id),
	PRIMARY KEY (sub_account_id, account_id)
);

CREATE TABLE IF NOT EXISTS emails (
	address     TEXT PRIMARY KEY,
	account_id  BIGINT  NOT NULL REFERENCES accounts (id),
	is_verified BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS phones (
	number      TEXT PRIMARY KEY,
	account_id  BIGINT  NOT NULL REFERENCES accounts (id),
	is_verified BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS transactions (
	id                       BIGSERIAL PRIMARY KEY,
	type                     TEXT           NOT NULL,
	status                   TEXT           NOT NULL,
	amount                   NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
	note                     TEXT           NOT NULL DEFAULT '',
	sender_id                BIGINT         NOT NULL REFERENCES accounts (id),
	sender_sub_account       TEXT           NOT NULL DEFAULT '',
	recipient_identifier     TEXT           NOT NULL DEFAULT '',
	recipient_id             BIGINT         REFERENCES accounts (id),
	recipient_sub_account_id BIGINT         REFERENCES sub_accounts (id),
	created_at               TIMESTAMPTZ    NOT NULL,
	updated_at               TIMESTAMPTZ    NOT NULL,
	completed_at             TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender    ON transactions (sender_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions (recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_pending   ON transactions (created_at) WHERE type = 'TRANSFER' AND status = 'PENDING';

CREATE TABLE IF NOT EXISTS payment_requests (
	id               BIGSERIAL PRIMARY KEY,
	transaction_id   BIGINT         NOT NULL REFERENCES transactions (id),
	requester_id     BIGINT         NOT NULL REFERENCES accounts (id),
	payer_identifier TEXT           NOT NULL,
	payer_id         BIGINT         REFERENCES accounts (id),
	amount           NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
	status           TEXT           NOT NULL,
	created_at       TIMESTAMPTZ    NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_payment_requests_transaction ON payment_requests (transaction_id);
`
