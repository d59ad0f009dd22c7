package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/metorial/auditor/internal/models"
)

func TestNewDB(t *testing.T) {
	db := setupTestDB(t)

	if db.conn == nil {
		t.Fatal("Database connection is nil")
	}

	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestHostLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	host := &models.Host{Name: "web-01", IP: "10.0.0.5", Username: "root"}
	if err := db.CreateHost(ctx, host); err != nil {
		t.Fatalf("Failed to create host: %v", err)
	}
	if host.ID == 0 {
		t.Fatal("Expected non-zero ID")
	}

	twin := &models.Host{Name: "web-01-alias", IP: "10.0.0.5", Username: "root"}
	if err := db.CreateHost(ctx, twin); err != nil {
		t.Fatalf("Duplicate ip/username pair must be allowed: %v", err)
	}

	hosts, err := db.GetAllHosts(ctx)
	if err != nil {
		t.Fatalf("Failed to list hosts: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("Expected 2 hosts, got %d", len(hosts))
	}

	byIP, err := db.GetHostByIP(ctx, "10.0.0.5")
	if err != nil {
		t.Fatalf("Failed to get host by ip: %v", err)
	}
	if byIP.ID != twin.ID {
		t.Errorf("Expected newest host %d, got %d", twin.ID, byIP.ID)
	}

	if err := db.UpdateHostOS(ctx, host.ID, "Ubuntu 22.04"); err != nil {
		t.Fatalf("Failed to update os: %v", err)
	}
	got, err := db.GetHost(ctx, host.ID)
	if err != nil {
		t.Fatalf("Failed to get host: %v", err)
	}
	if got.OS != "Ubuntu 22.04" {
		t.Errorf("Expected OS Ubuntu 22.04, got %q", got.OS)
	}

	if err := db.DeleteHost(ctx, host.ID); err != nil {
		t.Fatalf("Failed to delete host: %v", err)
	}
	if err := db.DeleteHost(ctx, host.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := db.GetHost(ctx, host.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPlaybookSectionsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := &models.Playbook{
		Name:       "linux-baseline",
		Filename:   "1_baseline.sh",
		Type:       models.PlaybookShell,
		Content:    "u_01() {\n  echo one\n}\n",
		SHA256Hash: "abc",
		TaskCount:  1,
		Sections: []models.Section{
			{ID: "section_1", Name: "u_01", Content: "u_01() {\n  echo one\n}"},
		},
	}
	if err := db.CreatePlaybook(ctx, p); err != nil {
		t.Fatalf("Failed to create playbook: %v", err)
	}

	got, err := db.GetPlaybook(ctx, p.ID)
	if err != nil {
		t.Fatalf("Failed to get playbook: %v", err)
	}
	if got.Status != models.PlaybookIdle {
		t.Errorf("Expected idle status, got %q", got.Status)
	}
	if len(got.Sections) != 1 || got.Sections[0].ID != "section_1" {
		t.Errorf("Unexpected sections: %+v", got.Sections)
	}
	if got.LastRun != nil {
		t.Errorf("Expected nil last run, got %v", got.LastRun)
	}

	now := time.Now().UTC()
	if err := db.MarkPlaybookRun(ctx, p.ID, string(models.StatusCompleted), now); err != nil {
		t.Fatalf("Failed to mark run: %v", err)
	}
	got, _ = db.GetPlaybook(ctx, p.ID)
	if got.Status != "completed" || got.LastRun == nil {
		t.Errorf("Expected completed with last run, got %q %v", got.Status, got.LastRun)
	}

	count, err := db.CountPlaybooks(ctx)
	if err != nil || count != 1 {
		t.Errorf("Expected 1 playbook, got %d (%v)", count, err)
	}

	if err := db.DeletePlaybook(ctx, p.ID); err != nil {
		t.Fatalf("Failed to delete playbook: %v", err)
	}
	if _, err := db.GetPlaybook(ctx, p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestExecutionResultsWriteOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	exec := newTestExecution("exec-1")
	if err := db.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("Failed to create execution: %v", err)
	}

	result := models.ExecutionResult{HostID: 1, Hostname: "a", IP: "10.0.0.1", Success: true, Output: "ok", CompletedAt: time.Now().UTC()}
	if err := db.RecordExecutionResult(ctx, exec.ID, result); err != nil {
		t.Fatalf("Failed to record result: %v", err)
	}
	if err := db.RecordExecutionResult(ctx, exec.ID, result); err == nil {
		t.Error("Expected second write for the same host to fail")
	}

	ended := time.Now().UTC()
	exec.Status = models.StatusCompleted
	exec.EndedAt = &ended
	exec.SucceededHosts = 1
	if err := db.UpdateExecutionStatus(ctx, exec); err != nil {
		t.Fatalf("Failed to update execution: %v", err)
	}

	got, err := db.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("Failed to get execution: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if len(got.Results) != 1 || !got.Results[1].Success {
		t.Errorf("Unexpected results: %+v", got.Results)
	}
	if len(got.HostIDs) != 2 || got.Hosts[1].Name != "b" {
		t.Errorf("Host snapshot not restored: %+v", got)
	}
}

func TestFailInterruptedExecutions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateExecution(ctx, newTestExecution("exec-1")); err != nil {
		t.Fatalf("Failed to create execution: %v", err)
	}

	n, err := db.FailInterruptedExecutions(ctx, "engine restarted")
	if err != nil {
		t.Fatalf("Failed to fail executions: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 interrupted execution, got %d", n)
	}

	got, _ := db.GetExecution(ctx, "exec-1")
	if got.Status != models.StatusFailed || got.Error != "engine restarted" {
		t.Errorf("Unexpected execution state: %s %q", got.Status, got.Error)
	}
}

func TestDeleteExecutionsBefore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := newTestExecution("old")
	recent := newTestExecution("recent")
	running := newTestExecution("running")
	for _, e := range []*models.Execution{old, recent, running} {
		if err := db.CreateExecution(ctx, e); err != nil {
			t.Fatalf("Failed to create execution: %v", err)
		}
	}

	oldEnd := time.Now().UTC().Add(-10 * 24 * time.Hour)
	old.Status = models.StatusCompleted
	old.EndedAt = &oldEnd
	recentEnd := time.Now().UTC()
	recent.Status = models.StatusFailed
	recent.EndedAt = &recentEnd
	for _, e := range []*models.Execution{old, recent} {
		if err := db.UpdateExecutionStatus(ctx, e); err != nil {
			t.Fatalf("Failed to update execution: %v", err)
		}
	}

	ids, err := db.DeleteExecutionsBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to delete executions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "old" {
		t.Errorf("Expected only old to be deleted, got %v", ids)
	}

	execs, err := db.ListExecutions(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list executions: %v", err)
	}
	if len(execs) != 2 {
		t.Errorf("Expected 2 remaining executions, got %d", len(execs))
	}
}

func TestAuditResultLatestWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := &models.AuditResultSet{
		HostID: 7, Username: "root", Columns: []string{"항목코드", "결과"},
		Rows:      []models.AuditRow{{CheckName: "U-01", Verdict: models.VerdictBad}},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	second := &models.AuditResultSet{
		HostID: 7, Username: "root", ExecutionID: "exec-9", Columns: []string{"항목코드", "결과", "비고"},
		Rows: []models.AuditRow{
			{CheckName: "U-01", Verdict: models.VerdictGood, Details: map[string]string{"비고": "fixed"}},
			{CheckName: "U-02", Verdict: models.VerdictNA},
		},
		CreatedAt: time.Now().UTC(),
	}
	for _, s := range []*models.AuditResultSet{first, second} {
		if err := db.SaveAuditResult(ctx, s); err != nil {
			t.Fatalf("Failed to save audit result: %v", err)
		}
	}

	latest, err := db.LatestAuditResult(ctx, 7, "root")
	if err != nil {
		t.Fatalf("Failed to get latest audit result: %v", err)
	}
	if latest.ID != second.ID || len(latest.Rows) != 2 {
		t.Fatalf("Expected second result set, got %+v", latest)
	}
	if latest.Rows[0].Details["비고"] != "fixed" {
		t.Errorf("Details not restored: %+v", latest.Rows[0])
	}

	byExec, err := db.AuditResultForExecution(ctx, "exec-9", 7)
	if err != nil || byExec.ID != second.ID {
		t.Errorf("Expected result by execution, got %+v (%v)", byExec, err)
	}

	if _, err := db.LatestAuditResult(ctx, 7, "admin"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func newTestExecution(id string) *models.Execution {
	return &models.Execution{
		ID:           id,
		PlaybookID:   1,
		PlaybookName: "baseline",
		HostIDs:      []int64{1, 2},
		Hosts:        []models.HostSnapshot{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}},
		Status:       models.StatusPending,
		StartedAt:    time.Now().UTC(),
		TotalHosts:   2,
		Results:      map[int64]models.ExecutionResult{},
	}
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
