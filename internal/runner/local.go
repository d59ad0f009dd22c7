package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/metorial/auditor/internal/models"
	"go.uber.org/zap"
)

// LocalRunner executes scripts on the machine the engine runs on.
type LocalRunner struct {
	shell  string
	logger *zap.Logger
}

func NewLocalRunner(logger *zap.Logger) *LocalRunner {
	return &LocalRunner{shell: "/bin/bash", logger: logger}
}

func (r *LocalRunner) Run(ctx context.Context, target Target, script string) models.ExecutionResult {
	resultFile, err := os.CreateTemp("", "auditor-*.csv")
	if err != nil {
		return failed(target, "", fmt.Errorf("create result file: %w", err))
	}
	resultFile.Close()
	defer os.Remove(resultFile.Name())

	tmpFile, err := os.CreateTemp("", "auditor-*.sh")
	if err != nil {
		return failed(target, "", fmt.Errorf("create temp file: %w", err))
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(wrapScript(target, script, resultFile.Name())); err != nil {
		tmpFile.Close()
		return failed(target, "", fmt.Errorf("write script: %w", err))
	}
	if err := tmpFile.Chmod(0700); err != nil {
		tmpFile.Close()
		return failed(target, "", fmt.Errorf("chmod script: %w", err))
	}
	tmpFile.Close()

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, r.shell, tmpFile.Name())
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()

	if cerr := contextFailure(ctx, ""); cerr != nil {
		return failed(target, output.String(), cerr)
	}

	result := newResult(target)
	result.Output = output.String()
	result.CompletedAt = time.Now().UTC()
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return failed(target, output.String(), fmt.Errorf("execute script: %w", runErr))
		}
		result.ReturnCode = exitErr.ExitCode()
	}
	result.Success = result.ReturnCode == 0

	if report, err := os.ReadFile(resultFile.Name()); err == nil {
		result.Report = report
	}

	r.logger.Debug("local script finished",
		zap.Int64("host_id", target.HostID),
		zap.Int("return_code", result.ReturnCode),
		zap.Duration("duration", time.Since(start)))
	return result
}

func (r *LocalRunner) Probe(ctx context.Context, target Target, command string) (string, error) {
	out, err := exec.CommandContext(ctx, r.shell, "-c", command).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("probe %s: %w", target.Hostname, err)
	}
	return string(out), nil
}
