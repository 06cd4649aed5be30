package store

// migration is one schema step, applied once in Version order.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create progress",
		SQL: `
			CREATE TABLE progress (
				user_id       TEXT PRIMARY KEY,
				display_name  TEXT NOT NULL DEFAULT '',
				xp            INTEGER NOT NULL DEFAULT 0,
				level         INTEGER NOT NULL DEFAULT 1,
				last_message  TEXT,
				updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_progress_rank ON progress (level DESC, xp DESC);
		`,
	},
	{
		Version: 2,
		Name:    "create badges",
		SQL: `
			CREATE TABLE badges (
				user_id     TEXT NOT NULL REFERENCES progress(user_id) ON DELETE CASCADE,
				name        TEXT NOT NULL,
				awarded_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (user_id, name)
			);
		`,
	},
}
