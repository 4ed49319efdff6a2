// Package realtime tracks the live channels each user holds and pushes
// notifications to all of them.
package realtime

import (
	"sync"

	"github.com/hackgods/appointment-notifications/internal/metrics"
)

// Channel is one live, authenticated session. Send must not block: it queues
// the frame or fails.
type Channel interface {
	ID() string
	Send(payload []byte) error
}

// Registry maps a user id to the set of channels currently open for it. A
// user's entry disappears as soon as its last channel leaves.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]map[string]Channel)}
}

func (r *Registry) Join(userID int64, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]Channel)
		r.users[userID] = set
	}
	if _, exists := set[ch.ID()]; !exists {
		metrics.LiveChannels.Inc()
	}
	set[ch.ID()] = ch
}

// Leave is a no-op for a channel that is not registered.
func (r *Registry) Leave(userID int64, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return
	}
	if _, exists := set[ch.ID()]; !exists {
		return
	}
	delete(set, ch.ID())
	metrics.LiveChannels.Dec()
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

// ChannelsFor returns a copy of the user's channels; callers may iterate it
// while other goroutines join and leave.
func (r *Registry) ChannelsFor(userID int64) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	out := make([]Channel, 0, len(set))
	for _, ch := range set {
		out = append(out, ch)
	}
	return out
}

// Stats reports how many users are online and how many channels they hold.
func (r *Registry) Stats() (users, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, set := range r.users {
		channels += len(set)
	}
	return len(r.users), channels
}
