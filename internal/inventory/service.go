// Package inventory manages audit targets and runs synchronous ad-hoc checks
// against them.
package inventory

import (
	"context"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/metorial/auditor/internal/audit"
	"github.com/metorial/auditor/internal/models"
	"github.com/metorial/auditor/internal/runner"
	"github.com/metorial/auditor/internal/store"
	"go.uber.org/zap"
)

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

type Service struct {
	db      *store.DB
	runner  runner.Runner
	audit   *audit.Service
	timeout time.Duration
	logger  *zap.Logger
}

func NewService(db *store.DB, r runner.Runner, auditSvc *audit.Service, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{db: db, runner: r, audit: auditSvc, timeout: timeout, logger: logger}
}

// Register adds a host. The credential is only checked for presence; it is
// not stored.
func (s *Service) Register(ctx context.Context, name, username string, credential *models.Credential, ip string) (*models.Host, error) {
	name, username, ip = strings.TrimSpace(name), strings.TrimSpace(username), strings.TrimSpace(ip)
	switch {
	case name == "":
		return nil, models.Validationf("name is required")
	case username == "":
		return nil, models.Validationf("username is required")
	case credential.Empty():
		return nil, models.Validationf("password is required")
	case ip == "":
		return nil, models.Validationf("ip is required")
	}
	if net.ParseIP(ip) == nil && !hostnamePattern.MatchString(ip) {
		return nil, models.Validationf("invalid ip or hostname: %s", ip)
	}

	host := &models.Host{Name: name, IP: ip, Username: username}
	if err := s.db.CreateHost(ctx, host); err != nil {
		return nil, models.Infrastructuref("failed to register host: %v", err)
	}
	s.logger.Info("host registered", zap.Int64("host_id", host.ID), zap.String("name", name), zap.String("ip", ip))
	return host, nil
}

func (s *Service) List(ctx context.Context) ([]models.Host, error) {
	return s.db.GetAllHosts(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Host, error) {
	return s.db.GetHost(ctx, id)
}

// Infos returns the selection view of every host.
func (s *Service) Infos(ctx context.Context) ([]models.HostInfo, error) {
	hosts, err := s.db.GetAllHosts(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]models.HostInfo, 0, len(hosts))
	for _, h := range hosts {
		infos = append(infos, h.Info())
	}
	return infos, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.db.DeleteHost(ctx, id); err != nil {
		return err
	}
	s.logger.Info("host deleted", zap.Int64("host_id", id))
	return nil
}

// Check runs the default check script for the host registered under ip and
// stores any audit rows it produces. The OS is discovered on first use.
func (s *Service) Check(ctx context.Context, username string, credential *models.Credential, ip string) (*models.CheckResult, error) {
	username, ip = strings.TrimSpace(username), strings.TrimSpace(ip)
	if username == "" || ip == "" || credential.Empty() {
		return nil, models.Validationf("username, password and ip are required")
	}

	host, err := s.db.GetHostByIP(ctx, ip)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	target := runner.Target{
		HostID:     host.ID,
		Hostname:   host.Name,
		IP:         host.IP,
		Username:   username,
		Credential: credential,
	}

	if host.OS == "" {
		s.discoverOS(ctx, host, target)
	}

	result := s.runner.Run(ctx, target, checkScript(host.OS))

	check := &models.CheckResult{
		Message:    "check completed",
		HostID:     host.ID,
		HostName:   host.Name,
		Result:     result.Output,
		ReturnCode: result.ReturnCode,
		Success:    result.Success,
	}
	if !result.Success {
		check.Message = "check failed"
		check.Error = lastLine(result.Output)
	}

	snapshot := host.Snapshot()
	snapshot.Username = username
	set, err := s.audit.IngestResult(ctx, "", snapshot, result)
	if err != nil {
		s.logger.Error("failed to store check results", zap.Int64("host_id", host.ID), zap.Error(err))
	} else if set != nil {
		check.Rows = len(set.Rows)
	}

	s.logger.Info("host check finished",
		zap.Int64("host_id", host.ID),
		zap.Bool("success", result.Success),
		zap.Int("return_code", result.ReturnCode))
	return check, nil
}

func (s *Service) discoverOS(ctx context.Context, host *models.Host, target runner.Target) {
	out, err := s.runner.Probe(ctx, target, osReleaseCommand)
	if err != nil {
		s.logger.Warn("os detection failed", zap.Int64("host_id", host.ID), zap.Error(err))
		return
	}
	osName := parseOSRelease(out)
	if osName == "" {
		return
	}
	if err := s.db.UpdateHostOS(ctx, host.ID, osName); err != nil {
		s.logger.Warn("failed to store detected os", zap.Int64("host_id", host.ID), zap.Error(err))
		return
	}
	host.OS = osName
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
