package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/metorial/auditor/internal/models"
)

const hostColumns = `id, name, ip, username, os, created_at, updated_at`

func (db *DB) CreateHost(ctx context.Context, host *models.Host) error {
	now := time.Now().UTC()
	query := `INSERT INTO hosts (name, ip, username, os, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	err := db.conn.QueryRowContext(ctx, query, host.Name, host.IP, host.Username, host.OS, now, now).Scan(&host.ID)
	if err != nil {
		return err
	}
	host.CreatedAt = now
	host.UpdatedAt = now
	return nil
}

func (db *DB) GetAllHosts(ctx context.Context) ([]models.Host, error) {
	hosts := []models.Host{}
	err := db.conn.SelectContext(ctx, &hosts, `SELECT `+hostColumns+` FROM hosts ORDER BY id`)
	return hosts, err
}

func (db *DB) GetHost(ctx context.Context, id int64) (*models.Host, error) {
	var h models.Host
	err := db.conn.GetContext(ctx, &h, `SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("host %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetHostByIP returns the most recently registered host with the given address.
func (db *DB) GetHostByIP(ctx context.Context, ip string) (*models.Host, error) {
	var h models.Host
	err := db.conn.GetContext(ctx, &h, `SELECT `+hostColumns+` FROM hosts WHERE ip = ? ORDER BY id DESC LIMIT 1`, ip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("host with ip %s not found", ip)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (db *DB) UpdateHostOS(ctx context.Context, id int64, os string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE hosts SET os = ?, updated_at = ? WHERE id = ?`, os, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectAffected(res, models.NotFoundf("host %d not found", id))
}

func (db *DB) DeleteHost(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM hosts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, models.NotFoundf("host %d not found", id))
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
