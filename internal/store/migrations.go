package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of SQLite schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS todos (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	title        TEXT NOT NULL,
	due_date     DATETIME,
	is_completed INTEGER NOT NULL DEFAULT 0 CHECK(is_completed IN (0, 1)),
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_todos_user_id ON todos(user_id);
CREATE INDEX IF NOT EXISTS idx_todos_due_date ON todos(due_date);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	task_id    TEXT NOT NULL,
	tier       TEXT NOT NULL CHECK(tier IN ('info', 'warning', 'danger')),
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	params     TEXT NOT NULL DEFAULT '{}',
	due_date   DATETIME,
	read       INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	dismissed  INTEGER NOT NULL DEFAULT 0 CHECK(dismissed IN (0, 1)),
	origin_tag TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_task
	ON notifications(user_id, task_id, dismissed);
CREATE INDEX IF NOT EXISTS idx_notifications_active
	ON notifications(dismissed, user_id);

CREATE TABLE IF NOT EXISTS mute_preferences (
	user_id    TEXT NOT NULL,
	task_id    TEXT NOT NULL,
	muted      INTEGER NOT NULL DEFAULT 0 CHECK(muted IN (0, 1)),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, task_id)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE notifications ADD COLUMN dismiss_reason TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_notifications_origin
	ON notifications(user_id, task_id, origin_tag);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
