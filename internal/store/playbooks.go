package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/metorial/auditor/internal/models"
)

type playbookRow struct {
	models.Playbook
	SectionsJSON string `db:"sections"`
}

func (r *playbookRow) decode() (*models.Playbook, error) {
	p := r.Playbook
	if r.SectionsJSON != "" {
		if err := json.Unmarshal([]byte(r.SectionsJSON), &p.Sections); err != nil {
			return nil, fmt.Errorf("decode sections of playbook %d: %w", p.ID, err)
		}
	}
	if len(p.Sections) == 0 {
		p.Sections = nil
	}
	return &p, nil
}

const playbookColumns = `id, name, description, filename, type, content, sections, status, last_run, task_count, sha256_hash, created_at`

func (db *DB) CreatePlaybook(ctx context.Context, p *models.Playbook) error {
	sections, err := json.Marshal(p.Sections)
	if err != nil {
		return err
	}
	if p.Sections == nil {
		sections = []byte("[]")
	}
	if p.Status == "" {
		p.Status = models.PlaybookIdle
	}
	p.CreatedAt = time.Now().UTC()

	query := `INSERT INTO playbooks (name, description, filename, type, content, sections, status, task_count, sha256_hash, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	return db.conn.QueryRowContext(ctx, query, p.Name, p.Description, p.Filename, p.Type, p.Content,
		string(sections), p.Status, p.TaskCount, p.SHA256Hash, p.CreatedAt).Scan(&p.ID)
}

func (db *DB) GetPlaybook(ctx context.Context, id int64) (*models.Playbook, error) {
	var row playbookRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+playbookColumns+` FROM playbooks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("playbook %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return row.decode()
}

func (db *DB) GetAllPlaybooks(ctx context.Context) ([]models.Playbook, error) {
	var rows []playbookRow
	if err := db.conn.SelectContext(ctx, &rows, `SELECT `+playbookColumns+` FROM playbooks ORDER BY id`); err != nil {
		return nil, err
	}
	playbooks := make([]models.Playbook, 0, len(rows))
	for i := range rows {
		p, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		playbooks = append(playbooks, *p)
	}
	return playbooks, nil
}

func (db *DB) CountPlaybooks(ctx context.Context) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM playbooks`)
	return n, err
}

// MarkPlaybookRun records the outcome of the latest execution of a playbook.
// A deleted playbook is not an error here.
func (db *DB) MarkPlaybookRun(ctx context.Context, id int64, status string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE playbooks SET status = ?, last_run = ? WHERE id = ?`, status, at, id)
	return err
}

func (db *DB) DeletePlaybook(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM playbooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, models.NotFoundf("playbook %d not found", id))
}
