// Package execution fans a playbook out to a set of hosts and tracks the
// per-host results until every host has reported.
package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metorial/auditor/internal/audit"
	"github.com/metorial/auditor/internal/metrics"
	"github.com/metorial/auditor/internal/models"
	"github.com/metorial/auditor/internal/playbook"
	"github.com/metorial/auditor/internal/runner"
	"github.com/metorial/auditor/internal/store"
	"go.uber.org/zap"
)

// Request asks for one playbook to be run on a set of hosts. The dispatcher
// takes ownership of Credential and wipes it when the execution ends.
type Request struct {
	PlaybookID int64
	HostIDs    []int64
	Credential *models.Credential
	SectionIDs []string
}

type Config struct {
	Workers int
	Timeout time.Duration
}

type Dispatcher struct {
	db     *store.DB
	runner runner.Runner
	audit  *audit.Service
	cfg    Config
	logger *zap.Logger

	// sem bounds concurrent host runs across all executions.
	sem chan struct{}

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]*tracker
	closed bool
}

func NewDispatcher(db *store.DB, r runner.Runner, auditSvc *audit.Service, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		db:     db,
		runner: r,
		audit:  auditSvc,
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.Workers),
		ctx:    ctx,
		stop:   stop,
		active: make(map[string]*tracker),
	}
}

// Start validates req, persists a new execution and schedules it. It returns
// as soon as the record exists; progress is observed through Get or
// Subscribe.
func (d *Dispatcher) Start(ctx context.Context, req Request) (*models.Execution, error) {
	owned := false
	defer func() {
		if !owned {
			req.Credential.Wipe()
		}
	}()

	hostIDs := dedupe(req.HostIDs)
	if len(hostIDs) == 0 {
		return nil, models.Validationf("at least one host must be selected")
	}
	if req.Credential.Empty() {
		return nil, models.Validationf("password is required")
	}

	pb, err := d.db.GetPlaybook(ctx, req.PlaybookID)
	if err != nil {
		return nil, err
	}

	hosts := make([]models.HostSnapshot, 0, len(hostIDs))
	for _, id := range hostIDs {
		h, err := d.db.GetHost(ctx, id)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h.Snapshot())
	}

	sectionIDs := req.SectionIDs
	if len(pb.Sections) <= 1 {
		sectionIDs = nil
	}
	for _, id := range sectionIDs {
		if !pb.HasSection(id) {
			return nil, models.Validationf("section %s not found in playbook %d", id, pb.ID)
		}
	}

	exec := &models.Execution{
		ID:               uuid.NewString(),
		PlaybookID:       pb.ID,
		PlaybookName:     pb.Name,
		PlaybookFilename: pb.Filename,
		HostIDs:          hostIDs,
		SectionIDs:       sectionIDs,
		Hosts:            hosts,
		Status:           models.StatusPending,
		StartedAt:        time.Now().UTC(),
		TotalHosts:       len(hosts),
		Results:          make(map[int64]models.ExecutionResult, len(hosts)),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, models.Infrastructuref("dispatcher is shut down")
	}
	if err := d.db.CreateExecution(ctx, exec); err != nil {
		return nil, models.Infrastructuref("failed to create execution: %v", err)
	}

	runCtx, cancel := context.WithCancel(d.ctx)
	t := newTracker(exec, cancel)
	d.active[exec.ID] = t
	metrics.ExecutionsStarted.Inc()
	metrics.ActiveExecutions.Inc()

	// The run goroutine mutates exec under t.mu from here on.
	snap := exec.Clone()
	owned = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer req.Credential.Wipe()
		defer cancel()
		d.run(runCtx, t, pb, req.Credential)
	}()

	d.logger.Info("execution started",
		zap.String("execution_id", exec.ID),
		zap.Int64("playbook_id", pb.ID),
		zap.Int("hosts", len(hosts)),
		zap.Strings("sections", sectionIDs))

	return snap, nil
}

func (d *Dispatcher) run(ctx context.Context, t *tracker, pb *models.Playbook, cred *models.Credential) {
	t.advance(models.PhaseDispatching)

	script, err := playbook.Render(pb, t.exec.SectionIDs)
	if err != nil {
		d.fail(t, err)
		return
	}
	if ctx.Err() != nil {
		if d.ctx.Err() != nil {
			d.fail(t, errors.New("dispatcher stopped before the execution was scheduled"))
			return
		}
		// Cancelled while dispatching; Cancel already filled in the results.
		return
	}

	if !t.advance(models.PhaseRunning) {
		return
	}
	if err := d.persist(t); err != nil {
		d.fail(t, err)
		return
	}

	var wg sync.WaitGroup
	for _, h := range t.hosts() {
		wg.Add(1)
		go func(h models.HostSnapshot) {
			defer wg.Done()
			d.runHost(ctx, t, h, script, cred)
		}(h)
	}
	wg.Wait()
}

func (d *Dispatcher) runHost(ctx context.Context, t *tracker, h models.HostSnapshot, script string, cred *models.Credential) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		d.record(t, cancelledResult(h))
		return
	}
	defer func() { <-d.sem }()

	if ctx.Err() != nil {
		d.record(t, cancelledResult(h))
		return
	}

	hostCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res := d.runner.Run(hostCtx, runner.Target{
		HostID:     h.ID,
		Hostname:   h.Name,
		IP:         h.IP,
		Username:   h.Username,
		Credential: cred,
	}, script)
	metrics.HostRunDuration.Observe(time.Since(start).Seconds())

	if !res.Success && ctx.Err() != nil {
		res.Cancelled = true
	}

	if !d.record(t, res) {
		d.logger.Debug("dropped late host result",
			zap.String("execution_id", t.exec.ID),
			zap.Int64("host_id", h.ID))
	}
}

// record merges one host result and reports whether it was kept. The first
// result for a host wins; later ones are dropped along with their audit data.
func (d *Dispatcher) record(t *tracker, res models.ExecutionResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase.Status().Terminal() {
		return false
	}
	if _, ok := t.exec.Results[res.HostID]; ok {
		return false
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now().UTC()
	}

	ctx := context.Background()
	if !res.Cancelled {
		d.ingest(ctx, t, res)
	}
	res.Report = nil

	if err := d.db.RecordExecutionResult(ctx, t.exec.ID, res); err != nil {
		d.logger.Error("failed to persist host result",
			zap.String("execution_id", t.exec.ID),
			zap.Int64("host_id", res.HostID),
			zap.Error(err))
	}

	t.exec.Results[res.HostID] = res
	switch {
	case res.Success:
		t.exec.SucceededHosts++
		metrics.HostRuns.WithLabelValues("success").Inc()
	case res.Cancelled:
		t.exec.FailedHosts++
		metrics.HostRuns.WithLabelValues("cancelled").Inc()
	default:
		t.exec.FailedHosts++
		metrics.HostRuns.WithLabelValues("failure").Inc()
	}

	d.logger.Info("host finished",
		zap.String("execution_id", t.exec.ID),
		zap.Int64("host_id", res.HostID),
		zap.String("hostname", res.Hostname),
		zap.Bool("success", res.Success),
		zap.Int("return_code", res.ReturnCode))

	if len(t.exec.Results) < t.exec.TotalHosts {
		if err := d.db.UpdateExecutionStatus(ctx, t.exec); err != nil {
			d.logger.Warn("failed to persist execution progress", zap.String("execution_id", t.exec.ID), zap.Error(err))
		}
		t.publish()
		return true
	}
	d.finishLocked(t, models.PhaseCompleted, "")
	return true
}

// ingest stores the audit rows of an accepted result. t.mu must be held.
func (d *Dispatcher) ingest(ctx context.Context, t *tracker, res models.ExecutionResult) {
	for _, h := range t.exec.Hosts {
		if h.ID != res.HostID {
			continue
		}
		if _, err := d.audit.IngestResult(ctx, t.exec.ID, h, res); err != nil {
			d.logger.Warn("failed to store audit rows",
				zap.String("execution_id", t.exec.ID),
				zap.Int64("host_id", h.ID),
				zap.Error(err))
		}
		return
	}
}

func (d *Dispatcher) fail(t *tracker, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase.Status().Terminal() {
		return
	}
	t.exec.FailedHosts = t.exec.TotalHosts - t.exec.SucceededHosts
	d.finishLocked(t, models.PhaseFailed, cause.Error())
}

// finishLocked moves t to a terminal phase. t.mu must be held.
func (d *Dispatcher) finishLocked(t *tracker, phase models.Phase, reason string) {
	now := time.Now().UTC()
	t.phase = phase
	t.exec.Status = phase.Status()
	t.exec.Error = reason
	t.exec.EndedAt = &now

	ctx := context.Background()
	if err := d.db.UpdateExecutionStatus(ctx, t.exec); err != nil {
		d.logger.Error("failed to persist execution state", zap.String("execution_id", t.exec.ID), zap.Error(err))
	}
	if err := d.db.MarkPlaybookRun(ctx, t.exec.PlaybookID, string(t.exec.Status), now); err != nil {
		d.logger.Warn("failed to update playbook status", zap.Int64("playbook_id", t.exec.PlaybookID), zap.Error(err))
	}

	metrics.ExecutionsFinished.WithLabelValues(string(t.exec.Status)).Inc()
	metrics.ActiveExecutions.Dec()
	metrics.ExecutionDuration.Observe(now.Sub(t.exec.StartedAt).Seconds())

	fields := []zap.Field{
		zap.String("execution_id", t.exec.ID),
		zap.String("status", string(t.exec.Status)),
		zap.Int("succeeded", t.exec.SucceededHosts),
		zap.Int("failed", t.exec.FailedHosts),
	}
	if phase == models.PhaseFailed {
		d.logger.Error("execution failed", append(fields, zap.String("error", reason))...)
	} else {
		d.logger.Info("execution completed", fields...)
	}

	t.publish()
	t.closeSubscribers()
	close(t.done)

	d.mu.Lock()
	delete(d.active, t.exec.ID)
	d.mu.Unlock()
}

func (d *Dispatcher) persist(t *tracker) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := d.db.UpdateExecutionStatus(context.Background(), t.exec); err != nil {
		return models.Infrastructuref("failed to persist execution state: %v", err)
	}
	t.publish()
	return nil
}

func (d *Dispatcher) lookup(id string) *tracker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[id]
}

// Get returns a snapshot of the execution.
func (d *Dispatcher) Get(ctx context.Context, id string) (*models.Execution, error) {
	if t := d.lookup(id); t != nil {
		return t.snapshot(), nil
	}
	return d.db.GetExecution(ctx, id)
}

// List returns recent executions, newest first. Running executions reflect
// their in-memory progress.
func (d *Dispatcher) List(ctx context.Context, limit int) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	execs, err := d.db.ListExecutions(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range execs {
		if t := d.lookup(execs[i].ID); t != nil {
			execs[i] = *t.snapshot()
		}
	}
	return execs, nil
}

// Cancel stops an execution. Hosts that have not reported are recorded as
// cancelled failures so the execution still completes with a result per host.
// Cancelling a finished execution is a no-op.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (*models.Execution, error) {
	t := d.lookup(id)
	if t == nil {
		return d.db.GetExecution(ctx, id)
	}

	t.cancel()
	for _, h := range t.hosts() {
		d.record(t, cancelledResult(h))
	}
	d.logger.Info("execution cancelled", zap.String("execution_id", id))
	return t.snapshot(), nil
}

// Subscribe streams snapshots of an execution. The channel keeps only the
// latest snapshot and is closed after the terminal one. Finished executions
// yield a single snapshot.
func (d *Dispatcher) Subscribe(ctx context.Context, id string) (<-chan *models.Execution, func(), error) {
	if t := d.lookup(id); t != nil {
		ch, unsubscribe := t.subscribe()
		return ch, unsubscribe, nil
	}

	exec, err := d.db.GetExecution(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan *models.Execution, 1)
	ch <- exec
	close(ch)
	return ch, func() {}, nil
}

// Wait blocks until the execution reaches a terminal state or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context, id string) (*models.Execution, error) {
	t := d.lookup(id)
	if t == nil {
		return d.db.GetExecution(ctx, id)
	}
	select {
	case <-t.done:
		return t.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sweep deletes terminal executions that ended more than retention ago.
func (d *Dispatcher) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	ids, err := d.db.DeleteExecutionsBefore(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, models.Infrastructuref("failed to sweep executions: %v", err)
	}
	if len(ids) > 0 {
		metrics.ExecutionsSwept.Add(float64(len(ids)))
		d.logger.Info("swept old executions", zap.Int("count", len(ids)), zap.Duration("retention", retention))
	}
	return len(ids), nil
}

// Close cancels running executions and waits for their goroutines.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.stop()
	d.wg.Wait()
}

func cancelledResult(h models.HostSnapshot) models.ExecutionResult {
	return models.ExecutionResult{
		HostID:      h.ID,
		Hostname:    h.Name,
		IP:          h.IP,
		Success:     false,
		Output:      "execution cancelled",
		ReturnCode:  runner.FailedReturnCode,
		CompletedAt: time.Now().UTC(),
		Cancelled:   true,
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
