// Package audit ingests the CSV reports audit scripts leave behind and
// serves them back as normalized GOOD/BAD/N/A rows.
package audit

import (
	"context"
	"time"

	"github.com/metorial/auditor/internal/models"
	"github.com/metorial/auditor/internal/store"
	"go.uber.org/zap"
)

type Service struct {
	db     *store.DB
	logger *zap.Logger
}

func NewService(db *store.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Ingest parses report and stores it as the newest result set of the host
// and user.
func (s *Service) Ingest(ctx context.Context, hostID int64, username, executionID string, report []byte) (*models.AuditResultSet, error) {
	columns, rows, err := ParseReport(report)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, &models.AuditResultSet{
		HostID:      hostID,
		Username:    username,
		ExecutionID: executionID,
		Columns:     columns,
		Rows:        rows,
	})
}

// IngestResult stores whatever audit data a run produced: the collected CSV
// when it holds rows, otherwise result lines found in the output. It returns
// nil when the run produced neither.
func (s *Service) IngestResult(ctx context.Context, executionID string, host models.HostSnapshot, result models.ExecutionResult) (*models.AuditResultSet, error) {
	if len(result.Report) > 0 {
		columns, rows, err := ParseReport(result.Report)
		if err == nil && len(rows) > 0 {
			return s.save(ctx, &models.AuditResultSet{
				HostID: host.ID, Username: host.Username, ExecutionID: executionID,
				Columns: columns, Rows: rows,
			})
		}
		if err != nil {
			s.logger.Warn("discarding malformed audit report", zap.Int64("host_id", host.ID), zap.Error(err))
		}
	}

	rows := ParseText(result.Output)
	if len(rows) == 0 {
		return nil, nil
	}
	return s.save(ctx, &models.AuditResultSet{
		HostID: host.ID, Username: host.Username, ExecutionID: executionID,
		Columns: []string{checkColumn, verdictColumn}, Rows: rows,
	})
}

func (s *Service) save(ctx context.Context, set *models.AuditResultSet) (*models.AuditResultSet, error) {
	set.CreatedAt = time.Now().UTC()
	if set.Rows == nil {
		set.Rows = []models.AuditRow{}
	}
	if err := s.db.SaveAuditResult(ctx, set); err != nil {
		return nil, models.Infrastructuref("failed to store audit result: %v", err)
	}
	summary := models.Summarize(set.Rows)
	s.logger.Info("audit result stored",
		zap.Int64("host_id", set.HostID),
		zap.String("execution_id", set.ExecutionID),
		zap.Int("good", summary.Good),
		zap.Int("bad", summary.Bad),
		zap.Int("na", summary.NA))
	return set, nil
}

// Rows returns the latest result set for a host and user.
func (s *Service) Rows(ctx context.Context, hostID int64, username string) (*models.AuditResultSet, error) {
	return s.db.LatestAuditResult(ctx, hostID, username)
}

func (s *Service) RowsForExecution(ctx context.Context, executionID string, hostID int64) (*models.AuditResultSet, error) {
	return s.db.AuditResultForExecution(ctx, executionID, hostID)
}

// CSV returns the download name and contents of the latest result set.
func (s *Service) CSV(ctx context.Context, hostID int64, username string) (string, []byte, error) {
	set, err := s.Rows(ctx, hostID, username)
	if err != nil {
		return "", nil, err
	}
	data, err := EncodeCSV(set)
	if err != nil {
		return "", nil, err
	}
	return Filename(set), data, nil
}

func (s *Service) Summary(ctx context.Context, hostID int64, username string) (models.AuditSummary, error) {
	set, err := s.Rows(ctx, hostID, username)
	if err != nil {
		return models.AuditSummary{}, err
	}
	return models.Summarize(set.Rows), nil
}
