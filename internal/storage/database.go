package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"helix/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver normalises a configured store name to its database/sql driver name.
func Driver(name string) (string, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", name)
	}
}

// Open connects to the database described by dbCfg.
func Open(dbType string, dbCfg config.DatabaseConfig) (*sql.DB, error) {
	driver, err := Driver(dbType)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch driver {
	case "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one connection keeps ":memory:" databases and pragmas consistent
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			params := dbCfg.Params
			if params == "" {
				params = "parseTime=true&charset=utf8mb4"
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				portOr(dbCfg.Port, 3306),
				dbCfg.DBName,
				params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case "postgres":
		dsn := dbCfg.DSN
		if dsn == "" {
			params := dbCfg.Params
			if params == "" {
				params = "sslmode=disable"
			}
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				portOr(dbCfg.Port, 5432),
				dbCfg.DBName,
				params,
			)
		}
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func portOr(port, fallback int) int {
	if port == 0 {
		return fallback
	}
	return port
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, dbType string) error {
	driver, err := Driver(dbType)
	if err != nil {
		return fmt.Errorf("unsupported driver for migration: %s", dbType)
	}
	var stmts []string
	switch driver {
	case "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS universes (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS characters (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				universe_id TEXT NOT NULL,
				persona_config TEXT,
				FOREIGN KEY(universe_id) REFERENCES universes(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				character_id TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				pinned BOOLEAN NOT NULL DEFAULT 0,
				archived BOOLEAN NOT NULL DEFAULT 0,
				FOREIGN KEY(character_id) REFERENCES characters(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				sender TEXT NOT NULL,
				content TEXT NOT NULL,
				user_id TEXT,
				timestamp DATETIME NOT NULL,
				FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS feedback (
				message_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				rating INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (message_id, user_id),
				FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_characters_universe ON characters(universe_id)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, started_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(64) NOT NULL,
				email VARCHAR(320) NOT NULL DEFAULT '',
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS universes (
				id VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS characters (
				id VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				universe_id VARCHAR(64) NOT NULL,
				persona_config JSON NULL,
				PRIMARY KEY (id),
				INDEX idx_characters_universe (universe_id),
				CONSTRAINT fk_characters_universe FOREIGN KEY (universe_id) REFERENCES universes(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id VARCHAR(64) NOT NULL,
				user_id VARCHAR(64) NOT NULL,
				character_id VARCHAR(64) NOT NULL,
				started_at DATETIME(6) NOT NULL,
				pinned BOOLEAN NOT NULL DEFAULT FALSE,
				archived BOOLEAN NOT NULL DEFAULT FALSE,
				PRIMARY KEY (id),
				INDEX idx_conversations_user (user_id, started_at),
				CONSTRAINT fk_conversations_character FOREIGN KEY (character_id) REFERENCES characters(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				id VARCHAR(64) NOT NULL,
				conversation_id VARCHAR(64) NOT NULL,
				sender VARCHAR(16) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				user_id VARCHAR(64) NULL,
				timestamp DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_messages_conversation (conversation_id, timestamp),
				CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS feedback (
				message_id VARCHAR(64) NOT NULL,
				user_id VARCHAR(64) NOT NULL,
				rating INT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (message_id, user_id),
				CONSTRAINT fk_feedback_message FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case "postgres":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS universes (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS characters (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				universe_id TEXT NOT NULL REFERENCES universes(id) ON DELETE CASCADE,
				persona_config JSONB
			)`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				character_id TEXT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
				started_at TIMESTAMPTZ NOT NULL,
				pinned BOOLEAN NOT NULL DEFAULT FALSE,
				archived BOOLEAN NOT NULL DEFAULT FALSE
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				sender TEXT NOT NULL,
				content TEXT NOT NULL,
				user_id TEXT,
				timestamp TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS feedback (
				message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL,
				rating INTEGER NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (message_id, user_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_characters_universe ON characters(universe_id)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, started_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp)`,
		}
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
