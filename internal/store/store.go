package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// DB is the sqlite-backed persistence layer for hosts, playbooks,
// executions and audit results.
type DB struct {
	conn *sqlx.DB
}

func NewDB(path string) (*DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite has a single writer; funnelling everything through one
	// connection serializes writes per entity without SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS hosts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		ip TEXT NOT NULL,
		username TEXT NOT NULL,
		os TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_hosts_ip ON hosts(ip);

	CREATE TABLE IF NOT EXISTS playbooks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		sections TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'idle',
		last_run TIMESTAMP,
		task_count INTEGER NOT NULL DEFAULT 0,
		sha256_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_playbooks_name ON playbooks(name);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		playbook_id INTEGER NOT NULL,
		playbook_name TEXT NOT NULL,
		playbook_filename TEXT NOT NULL,
		host_ids TEXT NOT NULL,
		section_ids TEXT NOT NULL DEFAULT '[]',
		hosts TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		total_hosts INTEGER NOT NULL,
		succeeded_hosts INTEGER NOT NULL DEFAULT 0,
		failed_hosts INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);

	CREATE TABLE IF NOT EXISTS execution_results (
		execution_id TEXT NOT NULL,
		host_id INTEGER NOT NULL,
		hostname TEXT NOT NULL,
		ip TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		output TEXT NOT NULL,
		return_code INTEGER NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		cancelled BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (execution_id, host_id),
		FOREIGN KEY (execution_id) REFERENCES executions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS audit_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		execution_id TEXT NOT NULL DEFAULT '',
		columns TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_results_host_user ON audit_results(host_id, username);
	CREATE INDEX IF NOT EXISTS idx_audit_results_execution ON audit_results(execution_id, host_id);

	CREATE TABLE IF NOT EXISTS audit_rows (
		result_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		check_name TEXT NOT NULL,
		verdict TEXT NOT NULL CHECK (verdict IN ('GOOD', 'BAD', 'N/A')),
		details TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (result_id, position),
		FOREIGN KEY (result_id) REFERENCES audit_results(id) ON DELETE CASCADE
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
