package execution

import (
	"context"
	"sync"

	"github.com/metorial/auditor/internal/models"
)

// tracker owns the in-memory state of one running execution.
type tracker struct {
	mu     sync.Mutex
	exec   *models.Execution
	phase  models.Phase
	cancel context.CancelFunc
	done   chan struct{}

	subs   map[int]chan *models.Execution
	nextID int
}

func newTracker(exec *models.Execution, cancel context.CancelFunc) *tracker {
	return &tracker{
		exec:   exec,
		phase:  models.PhaseCreated,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[int]chan *models.Execution),
	}
}

// advance moves the phase forward. It reports false when the tracker is
// already at or past p.
func (t *tracker) advance(p models.Phase) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase >= p {
		return false
	}
	t.phase = p
	t.exec.Status = p.Status()
	return true
}

func (t *tracker) hosts() []models.HostSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.HostSnapshot(nil), t.exec.Hosts...)
}

func (t *tracker) snapshot() *models.Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exec.Clone()
}

func (t *tracker) subscribe() (<-chan *models.Execution, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan *models.Execution, 1)
	ch <- t.exec.Clone()
	if t.phase.Status().Terminal() {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

// publish offers the current state to every subscriber. t.mu must be held.
func (t *tracker) publish() {
	for _, ch := range t.subs {
		offer(ch, t.exec.Clone())
	}
}

// closeSubscribers closes every subscriber channel. t.mu must be held.
func (t *tracker) closeSubscribers() {
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// offer replaces any unread snapshot so slow readers only see the latest.
func offer(ch chan *models.Execution, e *models.Execution) {
	select {
	case ch <- e:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- e:
	default:
	}
}
