package screening

import (
	"context"
	"sync"
)

// Tracker holds the cancel functions of live sessions so shutdown can end
// them and wait for their evaluations.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
	closing  bool
}

type trackedSession struct {
	cancel func()
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*trackedSession)}
}

// Register tracks a session until the returned func is called. Once CancelAll
// has run, new sessions are canceled on the spot and never reach Wait.
func (t *Tracker) Register(sessionID string, cancel func()) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedSession{cancel: cancel}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return func() {}
	}
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	t.closing = true
	for _, entry := range t.sessions {
		if entry.cancel != nil {
			cancels = append(cancels, entry.cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
