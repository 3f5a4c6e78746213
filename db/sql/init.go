package sql

// InitSQL is the collection of sqlite statements used to initialize a new
// hearth database.
var InitSQL = `
CREATE TABLE IF NOT EXISTS 'room' (
    'id'   TEXT PRIMARY KEY,
    'name' TEXT NOT NULL,
    'icon' TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS 'device' (
    'id'      TEXT PRIMARY KEY,
    'name'    TEXT NOT NULL,
    'type'    TEXT NOT NULL UNIQUE,
    'sensor'  INTEGER NOT NULL DEFAULT 0,
    'room_id' TEXT NOT NULL DEFAULT '',
    'icon'    TEXT NOT NULL DEFAULT '',
    'status'  TEXT NOT NULL DEFAULT '',
    'value'   TEXT
);

CREATE TABLE IF NOT EXISTS 'camera' (
    'id'      TEXT PRIMARY KEY,
    'name'    TEXT NOT NULL,
    'room_id' TEXT NOT NULL DEFAULT '',
    'active'  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS 'camera_user' (
    'camera_id' TEXT NOT NULL,
    'user_id'   TEXT NOT NULL,
    'position'  INTEGER NOT NULL,
    PRIMARY KEY ('camera_id', 'user_id')
);

CREATE TABLE IF NOT EXISTS 'face_embedding' (
    'id'         INTEGER PRIMARY KEY AUTOINCREMENT,
    'user_id'    TEXT NOT NULL,
    'vector'     TEXT NOT NULL,
    'created_at' TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS 'voice_history' (
    'id'         INTEGER PRIMARY KEY AUTOINCREMENT,
    'request'    TEXT NOT NULL,
    'response'   TEXT NOT NULL,
    'created_at' TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS 'face_embedding_user' ON 'face_embedding' ('user_id');
`
