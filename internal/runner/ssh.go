package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metorial/auditor/internal/models"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

type SSHConfig struct {
	Port           int
	ConnectTimeout time.Duration
	// Become runs the script through sudo, feeding the credential on stdin.
	Become bool
}

// SSHRunner uploads scripts over SFTP and runs them in an SSH session.
type SSHRunner struct {
	cfg    SSHConfig
	logger *zap.Logger
}

func NewSSHRunner(cfg SSHConfig, logger *zap.Logger) *SSHRunner {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &SSHRunner{cfg: cfg, logger: logger}
}

// connect opens an SSH connection with password or keyboard-interactive auth.
func (r *SSHRunner) connect(ctx context.Context, target Target) (*ssh.Client, error) {
	if target.Credential.Empty() {
		return nil, fmt.Errorf("%w: no credential supplied", models.ErrAuthFailure)
	}

	password := target.Credential.Reveal()
	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		// Targets are addressed by inventory IP; there is no known_hosts
		// store to verify against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(target.IP, strconv.Itoa(r.cfg.Port))
	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %v", models.ErrTransport, addr, err)
	}

	// dialCtx always carries a deadline.
	deadline, _ := dialCtx.Deadline()
	client, err := handshake(conn, addr, config, deadline)
	if err != nil {
		if errors.Is(err, models.ErrTransport) {
			return nil, err
		}
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %s@%s rejected the credential", models.ErrAuthFailure, target.Username, target.IP)
		}
		return nil, fmt.Errorf("%w: ssh handshake with %s: %v", models.ErrTransport, addr, err)
	}
	return client, nil
}

// handshake runs the SSH handshake on conn. The handshake has no context,
// so it is bounded by a connection deadline that is cleared afterwards.
// conn is closed on failure.
func handshake(conn net.Conn, addr string, config *ssh.ClientConfig, deadline time.Time) (*ssh.Client, error) {
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set handshake deadline on %s: %v", models.ErrTransport, addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: clear handshake deadline on %s: %v", models.ErrTransport, addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (r *SSHRunner) Run(ctx context.Context, target Target, script string) models.ExecutionResult {
	start := time.Now()
	client, err := r.connect(ctx, target)
	if err != nil {
		r.logger.Warn("ssh connect failed", zap.Int64("host_id", target.HostID), zap.String("ip", target.IP), zap.Error(err))
		return failed(target, "", err)
	}
	defer client.Close()

	// Closing the client unblocks any pending session or SFTP call.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return r.failure(ctx, target, "", fmt.Errorf("%w: open sftp: %v", models.ErrTransport, err))
	}
	defer sftpClient.Close()

	id := uuid.New().String()
	scriptPath := "/tmp/auditor-" + id + ".sh"
	resultPath := "/tmp/auditor-" + id + ".csv"

	if err := uploadBytes(sftpClient, []byte(wrapScript(target, script, resultPath)), scriptPath); err != nil {
		return r.failure(ctx, target, "", fmt.Errorf("%w: upload script: %v", models.ErrTransport, err))
	}
	defer r.remove(sftpClient, scriptPath)
	defer r.remove(sftpClient, resultPath)

	session, err := client.NewSession()
	if err != nil {
		return r.failure(ctx, target, "", fmt.Errorf("%w: open session: %v", models.ErrTransport, err))
	}
	defer session.Close()

	var output lockedBuffer
	session.Stdout = &output
	session.Stderr = &output

	command := "/bin/bash " + scriptPath
	if r.cfg.Become {
		command = "sudo -S -p '' /bin/bash " + scriptPath
		session.Stdin = strings.NewReader(target.Credential.Reveal() + "\n")
	}

	result := newResult(target)
	runErr := session.Run(command)
	if cerr := contextFailure(ctx, fmt.Sprintf(" on %s", target.IP)); cerr != nil {
		return failed(target, output.String(), cerr)
	}

	var exitErr *ssh.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		result.ReturnCode = exitErr.ExitStatus()
	default:
		return failed(target, output.String(), fmt.Errorf("%w: %v", models.ErrTransport, runErr))
	}

	result.Output = output.String()
	result.Success = result.ReturnCode == 0
	result.CompletedAt = time.Now().UTC()
	if report, err := readFile(sftpClient, resultPath); err == nil {
		result.Report = report
	}

	r.logger.Info("remote script finished",
		zap.Int64("host_id", target.HostID),
		zap.String("ip", target.IP),
		zap.Int("return_code", result.ReturnCode),
		zap.Duration("duration", time.Since(start)))
	return result
}

// failure prefers the context's reason when the run was interrupted.
func (r *SSHRunner) failure(ctx context.Context, target Target, output string, err error) models.ExecutionResult {
	if cerr := contextFailure(ctx, fmt.Sprintf(" on %s", target.IP)); cerr != nil {
		err = cerr
	}
	r.logger.Warn("remote script failed", zap.Int64("host_id", target.HostID), zap.String("ip", target.IP), zap.Error(err))
	return failed(target, output, err)
}

func (r *SSHRunner) remove(c *sftp.Client, path string) {
	if err := c.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("remote cleanup failed", zap.String("path", path), zap.Error(err))
	}
}

func (r *SSHRunner) Probe(ctx context.Context, target Target, command string) (string, error) {
	client, err := r.connect(ctx, target)
	if err != nil {
		return "", err
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: open session: %v", models.ErrTransport, err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	if err != nil {
		return string(out), fmt.Errorf("probe %s: %w", target.IP, err)
	}
	return string(out), nil
}

// uploadBytes copies in-memory bytes to a remote file readable only by the
// login user.
func uploadBytes(c *sftp.Client, data []byte, remotePath string) error {
	dst, err := c.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer dst.Close()

	if err := dst.Chmod(0700); err != nil {
		return err
	}
	_, err = dst.Write(data)
	return err
}

func readFile(c *sftp.Client, remotePath string) ([]byte, error) {
	f, err := c.Open(remotePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
