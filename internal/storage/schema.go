package storage

const Schema = `
CREATE TABLE IF NOT EXISTS processes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    number TEXT NOT NULL UNIQUE,
    primary_responsible TEXT,
    classification TEXT,
    task_id INTEGER UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_updated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_processes_last_updated ON processes(last_updated_at DESC);

CREATE TABLE IF NOT EXISTS subsidies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    process_number TEXT NOT NULL,
    item TEXT NOT NULL,
    status TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(process_number, item)
);

CREATE INDEX IF NOT EXISTS idx_subsidies_process ON subsidies(process_number);

CREATE TABLE IF NOT EXISTS relevant_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_item_preferences (
    user_id INTEGER NOT NULL,
    item_id INTEGER NOT NULL,
    is_enabled BOOLEAN NOT NULL DEFAULT 1,
    PRIMARY KEY (user_id, item_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (item_id) REFERENCES relevant_items(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_process_views (
    user_id INTEGER NOT NULL,
    process_id INTEGER NOT NULL,
    view_state TEXT NOT NULL,
    PRIMARY KEY (user_id, process_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (process_id) REFERENCES processes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_views_process ON user_process_views(process_id);

CREATE TABLE IF NOT EXISTS export_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    export_key TEXT NOT NULL UNIQUE,
    exported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
