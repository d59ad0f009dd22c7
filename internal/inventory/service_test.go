package inventory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/metorial/auditor/internal/audit"
	"github.com/metorial/auditor/internal/models"
	"github.com/metorial/auditor/internal/runner"
	"github.com/metorial/auditor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	osRelease string
	probeErr  error
	scripts   []string
	result    models.ExecutionResult
}

func (f *fakeRunner) Run(_ context.Context, target runner.Target, script string) models.ExecutionResult {
	f.scripts = append(f.scripts, script)
	r := f.result
	r.HostID = target.HostID
	return r
}

func (f *fakeRunner) Probe(_ context.Context, _ runner.Target, _ string) (string, error) {
	return f.osRelease, f.probeErr
}

func newTestService(t *testing.T, r runner.Runner) (*Service, *audit.Service) {
	t.Helper()
	db, err := store.NewDB(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	auditSvc := audit.NewService(db, zap.NewNop())
	return NewService(db, r, auditSvc, time.Minute, zap.NewNop()), auditSvc
}

func TestRegisterListDelete(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	host, err := svc.Register(ctx, "web-01", "root", models.NewCredential("x"), "10.0.0.5")
	require.NoError(t, err)

	hosts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "10.0.0.5", hosts[0].IP)
	assert.Equal(t, host.ID, hosts[0].ID)

	require.NoError(t, svc.Delete(ctx, host.ID))
	hosts, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, hosts)

	assert.True(t, errors.Is(svc.Delete(ctx, host.ID), models.ErrNotFound))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})
	ctx := context.Background()

	tests := []struct {
		name, hostName, user, password, ip string
	}{
		{"blank name", "", "root", "x", "10.0.0.1"},
		{"blank user", "a", " ", "x", "10.0.0.1"},
		{"blank password", "a", "root", "", "10.0.0.1"},
		{"blank ip", "a", "root", "x", ""},
		{"bad address", "a", "root", "x", "not an ip!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.hostName, tt.user, models.NewCredential(tt.password), tt.ip)
			assert.True(t, errors.Is(err, models.ErrValidation), "got %v", err)
		})
	}

	_, err := svc.Register(ctx, "db", "root", models.NewCredential("x"), "db-01.internal")
	assert.NoError(t, err)
}

func TestCheckDetectsOSAndStoresRows(t *testing.T) {
	fake := &fakeRunner{
		osRelease: "NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\nPRETTY_NAME=\"Ubuntu 22.04.4 LTS\"\n",
		result: models.ExecutionResult{
			Success: true,
			Output:  "done",
			Report:  []byte("항목코드,결과\nU-01,GOOD\nU-02,BAD\n"),
		},
	}
	svc, auditSvc := newTestService(t, fake)
	ctx := context.Background()

	host, err := svc.Register(ctx, "web-01", "root", models.NewCredential("x"), "10.0.0.5")
	require.NoError(t, err)

	check, err := svc.Check(ctx, "admin", models.NewCredential("x"), "10.0.0.5")
	require.NoError(t, err)
	assert.True(t, check.Success)
	assert.Equal(t, host.ID, check.HostID)
	assert.Equal(t, 2, check.Rows)
	assert.Equal(t, "check completed", check.Message)

	require.Len(t, fake.scripts, 1)
	assert.Contains(t, fake.scripts[0], "pam_pwquality")

	stored, err := svc.Get(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ubuntu 22.04.4 LTS", stored.OS)

	summary, err := auditSvc.Summary(ctx, host.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Good)
	assert.Equal(t, 1, summary.Bad)
}

func TestCheckUnknownHost(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{})

	_, err := svc.Check(context.Background(), "root", models.NewCredential("x"), "10.9.9.9")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = svc.Check(context.Background(), "root", models.NewCredential(""), "10.9.9.9")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestCheckFailureKeepsGenericScript(t *testing.T) {
	fake := &fakeRunner{
		probeErr: errors.New("unreachable"),
		result:   models.ExecutionResult{ReturnCode: -1, Output: "transport failure: dial tcp: refused"},
	}
	svc, _ := newTestService(t, fake)
	ctx := context.Background()

	_, err := svc.Register(ctx, "web-01", "root", models.NewCredential("x"), "10.0.0.5")
	require.NoError(t, err)

	check, err := svc.Check(ctx, "root", models.NewCredential("x"), "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, check.Success)
	assert.Equal(t, -1, check.ReturnCode)
	assert.Equal(t, "check failed", check.Message)
	assert.Equal(t, "transport failure: dial tcp: refused", check.Error)
	assert.True(t, strings.Contains(fake.scripts[0], "POSIX"))
}

func TestParseOSRelease(t *testing.T) {
	assert.Equal(t, "CentOS Linux 7 (Core)", parseOSRelease("NAME=\"CentOS Linux\"\nPRETTY_NAME=\"CentOS Linux 7 (Core)\"\n"))
	assert.Equal(t, "Alpine 3.19", parseOSRelease("NAME=Alpine\nVERSION_ID=3.19\n"))
	assert.Equal(t, "", parseOSRelease("garbage"))
}

func TestCheckScriptSelection(t *testing.T) {
	assert.Contains(t, checkScript("CentOS Linux 7"), "getenforce")
	assert.Contains(t, checkScript("Ubuntu 22.04"), "pam_pwquality")
	assert.Contains(t, checkScript(""), "POSIX")
}
