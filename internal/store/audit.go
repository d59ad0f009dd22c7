package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/metorial/auditor/internal/models"
)

type auditResultRow struct {
	models.AuditResultSet
	ColumnsJSON string `db:"columns"`
}

type auditRowRow struct {
	CheckName string `db:"check_name"`
	Verdict   string `db:"verdict"`
	Details   string `db:"details"`
}

// SaveAuditResult persists a normalized result set and its rows atomically.
func (db *DB) SaveAuditResult(ctx context.Context, set *models.AuditResultSet) error {
	columns, err := json.Marshal(set.Columns)
	if err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `INSERT INTO audit_results (host_id, username, execution_id, columns, created_at)
		          VALUES (?, ?, ?, ?, ?) RETURNING id`
		if err := tx.QueryRowContext(ctx, query, set.HostID, set.Username, set.ExecutionID, string(columns), set.CreatedAt).
			Scan(&set.ID); err != nil {
			return err
		}
		for i, row := range set.Rows {
			details, err := json.Marshal(row.Details)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_rows (result_id, position, check_name, verdict, details) VALUES (?, ?, ?, ?, ?)`,
				set.ID, i, row.CheckName, string(row.Verdict), string(details)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestAuditResult returns the newest result set for a host/user pair.
func (db *DB) LatestAuditResult(ctx context.Context, hostID int64, username string) (*models.AuditResultSet, error) {
	query := `SELECT id, host_id, username, execution_id, columns, created_at FROM audit_results
	          WHERE host_id = ? AND username = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	return db.getAuditResult(ctx, query, hostID, username)
}

func (db *DB) AuditResultForExecution(ctx context.Context, executionID string, hostID int64) (*models.AuditResultSet, error) {
	query := `SELECT id, host_id, username, execution_id, columns, created_at FROM audit_results
	          WHERE execution_id = ? AND host_id = ? ORDER BY id DESC LIMIT 1`
	return db.getAuditResult(ctx, query, executionID, hostID)
}

func (db *DB) getAuditResult(ctx context.Context, query string, args ...interface{}) (*models.AuditResultSet, error) {
	var row auditResultRow
	err := db.conn.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("no audit results found")
	}
	if err != nil {
		return nil, err
	}

	set := row.AuditResultSet
	if err := json.Unmarshal([]byte(row.ColumnsJSON), &set.Columns); err != nil {
		return nil, err
	}

	var rows []auditRowRow
	if err := db.conn.SelectContext(ctx, &rows,
		`SELECT check_name, verdict, details FROM audit_rows WHERE result_id = ? ORDER BY position`, set.ID); err != nil {
		return nil, err
	}
	set.Rows = make([]models.AuditRow, 0, len(rows))
	for _, r := range rows {
		ar := models.AuditRow{CheckName: r.CheckName, Verdict: models.Verdict(r.Verdict)}
		if err := json.Unmarshal([]byte(r.Details), &ar.Details); err != nil {
			return nil, err
		}
		set.Rows = append(set.Rows, ar)
	}
	return &set, nil
}
