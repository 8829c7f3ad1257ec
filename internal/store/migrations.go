package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	color_tag        TEXT NOT NULL DEFAULT '#0078d4',
	sort_order       INTEGER NOT NULL DEFAULT 0,
	credential_ref   TEXT NOT NULL DEFAULT '',
	shared_mailbox   TEXT NOT NULL DEFAULT '',
	gmail_user_index INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS credentials (
	account_id TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
	account_id TEXT PRIMARY KEY,
	fetched_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id           TEXT NOT NULL,
	account_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	sender       TEXT NOT NULL DEFAULT '',
	project_id   TEXT NOT NULL DEFAULT '',
	project_name TEXT NOT NULL DEFAULT '',
	timestamp    DATETIME,
	due_date     DATETIME,
	status       TEXT NOT NULL DEFAULT '',
	web_link     TEXT NOT NULL DEFAULT '',
	raw_data     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account_id, id)
);

CREATE INDEX IF NOT EXISTS idx_items_account_id ON items(account_id);
CREATE INDEX IF NOT EXISTS idx_items_timestamp ON items(timestamp);
CREATE INDEX IF NOT EXISTS idx_accounts_sort_order ON accounts(sort_order);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
