package relational

// SchemaVersion is the current schema version recorded on open.
const SchemaVersion = 1

// coreSchema holds the table and index definitions for the relational
// store: events, core memory blocks, entities, bi-temporal relations,
// reflections, and the watermark key/value table.
const coreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- =============================================================================
-- EVENTS TABLE (episodic memory, append-only)
-- =============================================================================
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	content TEXT NOT NULL,
	importance REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0.0 AND importance <= 1.0),
	entities TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	accessed_at TEXT,
	access_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_agent_created ON events(agent_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

-- =============================================================================
-- CORE MEMORY BLOCKS TABLE
-- =============================================================================
CREATE TABLE IF NOT EXISTS core_memory_blocks (
	id TEXT PRIMARY KEY,
	block_type TEXT NOT NULL,
	block_key TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE(block_type, block_key)
);

-- =============================================================================
-- ENTITIES TABLE (semantic memory)
-- =============================================================================
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	name_lower TEXT NOT NULL UNIQUE,
	entity_type TEXT NOT NULL,
	summary TEXT,
	observations TEXT NOT NULL DEFAULT '[]',
	importance REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0.0 AND importance <= 1.0),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	accessed_at TEXT,
	access_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entities_entity_type ON entities(entity_type);

-- =============================================================================
-- RELATIONS TABLE (bi-temporal graph edges)
-- =============================================================================
CREATE TABLE IF NOT EXISTS relations (
	id TEXT PRIMARY KEY,
	from_entity TEXT NOT NULL,
	to_entity TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0,
	valid_from TEXT NOT NULL,
	valid_until TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	FOREIGN KEY (from_entity) REFERENCES entities(id) ON DELETE CASCADE,
	FOREIGN KEY (to_entity) REFERENCES entities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_relations_triple ON relations(from_entity, to_entity, relation_type);
CREATE INDEX IF NOT EXISTS idx_relations_open ON relations(from_entity, to_entity, relation_type, valid_until);

-- =============================================================================
-- REFLECTIONS TABLE
-- =============================================================================
CREATE TABLE IF NOT EXISTS reflections (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	source_ids TEXT NOT NULL DEFAULT '[]',
	importance REAL NOT NULL DEFAULT 0.7,
	depth INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	accessed_at TEXT,
	access_count INTEGER NOT NULL DEFAULT 0
);

-- =============================================================================
-- STATE TABLE (watermarks)
-- =============================================================================
CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// ftsSchema configures full-text search over event content, kept in sync
// by triggers rather than external-content mode, for reliable trigger
// behavior across inserts, updates, and deletes.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	id UNINDEXED,
	agent_id UNINDEXED,
	content
);

CREATE TRIGGER IF NOT EXISTS events_fts_insert AFTER INSERT ON events BEGIN
	INSERT INTO events_fts(id, agent_id, content)
	VALUES (new.id, new.agent_id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS events_fts_delete AFTER DELETE ON events BEGIN
	DELETE FROM events_fts WHERE id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS events_fts_update AFTER UPDATE ON events BEGIN
	UPDATE events_fts SET agent_id = new.agent_id, content = new.content WHERE id = old.id;
END;
`
