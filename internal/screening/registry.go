package screening

import (
	"strings"
	"sync"
	"time"
)

const defaultBindingTTL = 10 * time.Minute

// Registry remembers which candidate an outbound call was placed for, so a
// media stream that arrives without a candidate parameter can still be bound.
type Registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]binding
}

type binding struct {
	uid     int64
	expires time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultBindingTTL
	}
	return &Registry{ttl: ttl, now: time.Now, pending: make(map[string]binding)}
}

// Bind associates callSID with uid until it is taken or expires.
func (r *Registry) Bind(callSID string, uid int64) {
	callSID = strings.TrimSpace(callSID)
	if r == nil || callSID == "" || uid <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for sid, b := range r.pending {
		if now.After(b.expires) {
			delete(r.pending, sid)
		}
	}
	r.pending[callSID] = binding{uid: uid, expires: now.Add(r.ttl)}
}

// Take returns and removes the binding for callSID.
func (r *Registry) Take(callSID string) (int64, bool) {
	if r == nil {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.pending[callSID]
	if !ok {
		return 0, false
	}
	delete(r.pending, callSID)

	if r.now().After(b.expires) {
		return 0, false
	}
	return b.uid, true
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
