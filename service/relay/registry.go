package relay

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrDuplicateConn means a connection id was registered twice. Snowflake ids
// make that an invariant violation, not a recoverable condition.
var ErrDuplicateConn = errors.New("connection id already registered")

// session pairs a live client with the last position it reported.
// lastLocation is nil until the member sends at least one update.
type session struct {
	client       *Client
	lastLocation *Location
}

// Registry is the authoritative in-memory record of who is connected and
// their last reported position. Single source of truth for "who is online";
// every mutation keyed by connection id goes through the one mutex, so a
// disconnect can never interleave with an in-flight update for the same
// connection.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*session // conn_id -> session
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*session),
	}
}

// Register adds a freshly authenticated connection.
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byConn[c.ConnID]; exists {
		return errors.Wrapf(ErrDuplicateConn, "conn=%s", c.ConnID)
	}
	r.byConn[c.ConnID] = &session{client: c}
	return nil
}

// RecordLocation overwrites the session's last position and returns the owning
// member id. ok=false means the connection is already mid-teardown and the
// update must be dropped.
func (r *Registry) RecordLocation(connID string, loc Location) (uid string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.byConn[connID]
	if s == nil {
		return "", false
	}
	l := loc
	s.lastLocation = &l
	return s.client.UID, true
}

// Remove deletes the session and returns its final state. Idempotent: the
// second call for the same connection reports ok=false, so racing teardown
// paths cannot double-process a disconnect.
func (r *Registry) Remove(connID string) (uid string, last *Location, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, exists := r.byConn[connID]
	if !exists {
		return "", nil, false
	}
	delete(r.byConn, connID)
	return s.client.UID, s.lastLocation, true
}

// Snapshot returns every connected member who has reported at least one
// position, with their most recent one. Point-in-time copy, not subscribed to
// further changes.
func (r *Registry) Snapshot() []MemberLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberLocation, 0, len(r.byConn))
	for _, s := range r.byConn {
		if s.lastLocation == nil {
			continue
		}
		out = append(out, MemberLocation{UID: s.client.UID, Location: *s.lastLocation})
	}
	return out
}

// Clients returns every registered client, broadcast targets for the single
// family group.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, s := range r.byConn {
		out = append(out, s.client)
	}
	return out
}

// ClientsExcept returns every registered client except the given connection.
func (r *Registry) ClientsExcept(connID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for id, s := range r.byConn {
		if id == connID {
			continue
		}
		out = append(out, s.client)
	}
	return out
}

// OnlineUIDs lists the member ids with at least one live session.
func (r *Registry) OnlineUIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.byConn))
	out := make([]string, 0, len(r.byConn))
	for _, s := range r.byConn {
		if _, dup := seen[s.client.UID]; dup {
			continue
		}
		seen[s.client.UID] = struct{}{}
		out = append(out, s.client.UID)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
