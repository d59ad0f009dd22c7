// Package runner executes rendered audit scripts on a single target host and
// folds every failure into the returned result.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/metorial/auditor/internal/models"
)

// ResultHeader is the first line of every audit CSV a script writes to
// $resultfile.
const ResultHeader = "항목코드,결과"

// FailedReturnCode marks results where the script never ran to completion.
const FailedReturnCode = -1

// Target is one host to run against. The credential is borrowed from the
// caller, which owns wiping it.
type Target struct {
	HostID     int64
	Hostname   string
	IP         string
	Username   string
	Credential *models.Credential
}

type Runner interface {
	// Run executes script on the target. It never returns an error: auth,
	// transport and timeout failures come back as an unsuccessful result.
	Run(ctx context.Context, target Target, script string) models.ExecutionResult

	// Probe runs a single command and returns its combined output.
	Probe(ctx context.Context, target Target, command string) (string, error)
}

// wrapScript prefixes script with the environment every audit script
// expects and initializes the result file.
func wrapScript(t Target, script, resultPath string) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "export HOST_ID=%s\n", shellQuote(fmt.Sprint(t.HostID)))
	fmt.Fprintf(&b, "export HOSTNAME=%s\n", shellQuote(t.Hostname))
	fmt.Fprintf(&b, "export USERNAME=%s\n", shellQuote(t.Username))
	fmt.Fprintf(&b, "export resultfile=%s\n", shellQuote(resultPath))
	fmt.Fprintf(&b, "echo %s > \"$resultfile\"\n\n", shellQuote(ResultHeader))
	b.WriteString(script)
	if !strings.HasSuffix(script, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func newResult(t Target) models.ExecutionResult {
	return models.ExecutionResult{HostID: t.HostID, Hostname: t.Hostname, IP: t.IP}
}

// failed builds the result of a run that could not complete.
func failed(t Target, output string, err error) models.ExecutionResult {
	r := newResult(t)
	r.ReturnCode = FailedReturnCode
	r.Output = strings.TrimSpace(output + "\n" + err.Error())
	r.CompletedAt = time.Now().UTC()
	return r
}

// contextFailure describes why ctx ended, or nil if it has not.
func contextFailure(ctx context.Context, timeoutHint string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: execution timed out%s", models.ErrTransport, timeoutHint)
	case errors.Is(ctx.Err(), context.Canceled):
		return errors.New("execution cancelled")
	}
	return nil
}

// lockedBuffer collects stdout and stderr written from separate goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
