package cluster

import (
	"sort"
	"sync"
)

// View is the master's picture of the cluster: the static follower set, the
// configured quorum, and the read-only flag derived from them.
//
// The read-only flag is only ever written by the quorum consumer (see
// Monitor), so transitions are totally ordered. Invariant after any
// quiescent state: readOnly ⇔ aliveCount < quorum.
type View struct {
	mu        sync.RWMutex
	followers map[string]*Follower
	order     []string // follower names, sorted, for stable iteration
	quorum    int
	readOnly  bool
}

// NewView builds a view from follower name → base URL. Every follower
// starts healthy.
func NewView(secondaries map[string]string, quorum, aliveLimit, suspectedLimit int) *View {
	v := &View{
		followers: make(map[string]*Follower, len(secondaries)),
		quorum:    quorum,
	}
	for name, url := range secondaries {
		v.followers[name] = NewFollower(name, url, aliveLimit, suspectedLimit)
		v.order = append(v.order, name)
	}
	sort.Strings(v.order)
	return v
}

// Followers returns the follower handles in name order.
func (v *View) Followers() []*Follower {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]*Follower, 0, len(v.order))
	for _, name := range v.order {
		out = append(out, v.followers[name])
	}
	return out
}

// Follower looks up a handle by name.
func (v *View) Follower(name string) (*Follower, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	f, ok := v.followers[name]
	return f, ok
}

// Count returns the number of followers (N).
func (v *View) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.followers)
}

// Quorum returns the configured minimum alive count, master included.
func (v *View) Quorum() int {
	return v.quorum
}

// AliveCount is 1 for the master plus every follower that is not unhealthy.
// Suspected counts as alive.
func (v *View) AliveCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	alive := 1
	for _, f := range v.followers {
		if !f.IsUnhealthy() {
			alive++
		}
	}
	return alive
}

// ReadOnly reports whether the master has lost quorum.
func (v *View) ReadOnly() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.readOnly
}

// SetReadOnly updates the read-only flag, returning the previous value.
func (v *View) SetReadOnly(ro bool) (was bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	was = v.readOnly
	v.readOnly = ro
	return was
}
