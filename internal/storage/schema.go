package storage

// memorySchema creates tables in the "memory" database: conversations,
// facts, tasks, scheduled jobs, and chat bindings.
var memorySchema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		description TEXT NOT NULL,
		done INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_jobs (
		name TEXT PRIMARY KEY,
		cron_expr TEXT NOT NULL,
		handler_ref TEXT NOT NULL,
		params TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_run INTEGER,
		next_run INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_bindings (
		platform TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		notif_level TEXT NOT NULL,
		PRIMARY KEY (platform, chat_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_chat ON conversations(chat_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id)`,
}

var memoryMigrations = []string{
	`ALTER TABLE tasks ADD COLUMN priority INTEGER NOT NULL DEFAULT 0`,
}

// stateSchema creates tables in the "state" database: plans, outcomes,
// pending actions, and alerts.
var stateSchema = []string{
	`CREATE TABLE IF NOT EXISTS pending_actions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		params TEXT,
		proposed_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		state TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outcomes (
		action_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		result TEXT,
		details TEXT,
		feedback TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_jobs_state (
		name TEXT PRIMARY KEY,
		last_fire_status TEXT,
		last_fire_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		instruction_text TEXT NOT NULL,
		target_project TEXT NOT NULL,
		file_ops TEXT,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		pr_url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		body TEXT NOT NULL,
		tier TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		next_escalate_at INTEGER,
		acknowledged_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_actions_user ON pending_actions(user_id, state)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_user ON plans(user_id, created_at)`,
}

var stateMigrations = []string{
	`ALTER TABLE outcomes ADD COLUMN feedback_sentiment TEXT`,
}
