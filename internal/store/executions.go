package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/metorial/auditor/internal/models"
)

type executionRow struct {
	ID               string     `db:"id"`
	PlaybookID       int64      `db:"playbook_id"`
	PlaybookName     string     `db:"playbook_name"`
	PlaybookFilename string     `db:"playbook_filename"`
	HostIDs          string     `db:"host_ids"`
	SectionIDs       string     `db:"section_ids"`
	Hosts            string     `db:"hosts"`
	Status           string     `db:"status"`
	Error            string     `db:"error"`
	StartedAt        time.Time  `db:"started_at"`
	EndedAt          *time.Time `db:"ended_at"`
	TotalHosts       int        `db:"total_hosts"`
	SucceededHosts   int        `db:"succeeded_hosts"`
	FailedHosts      int        `db:"failed_hosts"`
}

func (r *executionRow) decode() (*models.Execution, error) {
	e := &models.Execution{
		ID:               r.ID,
		PlaybookID:       r.PlaybookID,
		PlaybookName:     r.PlaybookName,
		PlaybookFilename: r.PlaybookFilename,
		Status:           models.ExecutionStatus(r.Status),
		Error:            r.Error,
		StartedAt:        r.StartedAt,
		EndedAt:          r.EndedAt,
		TotalHosts:       r.TotalHosts,
		SucceededHosts:   r.SucceededHosts,
		FailedHosts:      r.FailedHosts,
		Results:          map[int64]models.ExecutionResult{},
	}
	if err := errors.Join(
		json.Unmarshal([]byte(r.HostIDs), &e.HostIDs),
		json.Unmarshal([]byte(r.SectionIDs), &e.SectionIDs),
		json.Unmarshal([]byte(r.Hosts), &e.Hosts),
	); err != nil {
		return nil, err
	}
	return e, nil
}

const executionColumns = `id, playbook_id, playbook_name, playbook_filename, host_ids, section_ids, hosts,
	status, error, started_at, ended_at, total_hosts, succeeded_hosts, failed_hosts`

func (db *DB) CreateExecution(ctx context.Context, e *models.Execution) error {
	hostIDs, err := json.Marshal(e.HostIDs)
	if err != nil {
		return err
	}
	sectionIDs, err := json.Marshal(append([]string{}, e.SectionIDs...))
	if err != nil {
		return err
	}
	hosts, err := json.Marshal(e.Hosts)
	if err != nil {
		return err
	}

	query := `INSERT INTO executions (id, playbook_id, playbook_name, playbook_filename, host_ids, section_ids, hosts,
	          status, error, started_at, total_hosts)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.conn.ExecContext(ctx, query, e.ID, e.PlaybookID, e.PlaybookName, e.PlaybookFilename,
		string(hostIDs), string(sectionIDs), string(hosts), string(e.Status), e.Error, e.StartedAt, e.TotalHosts)
	return err
}

// UpdateExecutionStatus persists the aggregate fields of an execution.
func (db *DB) UpdateExecutionStatus(ctx context.Context, e *models.Execution) error {
	query := `UPDATE executions SET status = ?, error = ?, ended_at = ?, succeeded_hosts = ?, failed_hosts = ?
	          WHERE id = ?`
	res, err := db.conn.ExecContext(ctx, query, string(e.Status), e.Error, e.EndedAt, e.SucceededHosts, e.FailedHosts, e.ID)
	if err != nil {
		return err
	}
	return expectAffected(res, models.NotFoundf("execution %s not found", e.ID))
}

// RecordExecutionResult stores one host result. Each (execution, host) pair
// can be written exactly once.
func (db *DB) RecordExecutionResult(ctx context.Context, executionID string, r models.ExecutionResult) error {
	query := `INSERT INTO execution_results (execution_id, host_id, hostname, ip, success, output, return_code, completed_at, cancelled)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query, executionID, r.HostID, r.Hostname, r.IP, r.Success, r.Output,
		r.ReturnCode, r.CompletedAt, r.Cancelled)
	return err
}

func (db *DB) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	var row executionRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("execution %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	e, err := row.decode()
	if err != nil {
		return nil, err
	}
	if err := db.loadResults(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListExecutions returns the most recent executions first.
func (db *DB) ListExecutions(ctx context.Context, limit int) ([]models.Execution, error) {
	var rows []executionRow
	err := db.conn.SelectContext(ctx, &rows, `SELECT `+executionColumns+` FROM executions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	execs := make([]models.Execution, 0, len(rows))
	for i := range rows {
		e, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		if err := db.loadResults(ctx, e); err != nil {
			return nil, err
		}
		execs = append(execs, *e)
	}
	return execs, nil
}

func (db *DB) loadResults(ctx context.Context, e *models.Execution) error {
	var results []models.ExecutionResult
	query := `SELECT host_id, hostname, ip, success, output, return_code, completed_at, cancelled
	          FROM execution_results WHERE execution_id = ?`
	if err := db.conn.SelectContext(ctx, &results, query, e.ID); err != nil {
		return err
	}
	for _, r := range results {
		e.Results[r.HostID] = r
	}
	return nil
}

// FailInterruptedExecutions marks executions left non-terminal by a previous
// process as failed.
func (db *DB) FailInterruptedExecutions(ctx context.Context, reason string) (int64, error) {
	query := `UPDATE executions SET status = ?, error = ?, ended_at = ? WHERE status IN (?, ?)`
	res, err := db.conn.ExecContext(ctx, query, string(models.StatusFailed), reason, time.Now().UTC(),
		string(models.StatusPending), string(models.StatusRunning))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExecutionsBefore removes terminal executions that ended before cutoff.
func (db *DB) DeleteExecutionsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In(`SELECT id FROM executions WHERE status IN (?) AND ended_at < ?`,
			[]string{string(models.StatusCompleted), string(models.StatusFailed)}, cutoff)
		if err != nil {
			return err
		}
		if err := tx.SelectContext(ctx, &ids, tx.Rebind(query), args...); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		query, args, err = sqlx.In(`DELETE FROM executions WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
		return err
	})
	return ids, err
}
