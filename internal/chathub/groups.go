package chathub

import (
	"sync"

	"pinchat/backend/internal/protocol"

	"go.uber.org/zap"
)

// Groups tracks every live connection and the per-user group it belongs to.
//
// Membership changes, delivery and closing a connection all happen under the
// same lock, so an event is never pushed to a connection whose send channel
// has been closed.
type Groups struct {
	mu      sync.Mutex
	conns   map[string]Client            // connID -> client
	members map[string]map[string]Client // userID -> connID -> client

	log *zap.Logger
}

// NewGroups returns an empty set of groups that logs dropped events to log.
func NewGroups(log *zap.Logger) *Groups {
	if log == nil {
		log = zap.NewNop()
	}
	return &Groups{
		conns:   make(map[string]Client),
		members: make(map[string]map[string]Client),
		log:     log,
	}
}

// Add tracks a new connection and joins it to its user's group.
func (g *Groups) Add(c Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[c.GetConnID()] = c
	g.join(c)
}

// Join puts a tracked connection back into its user's group. It is
// idempotent and reports false for connections that are gone.
func (g *Groups) Join(c Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[c.GetConnID()]; !ok {
		return false
	}
	g.join(c)
	return true
}

func (g *Groups) join(c Client) {
	set, ok := g.members[c.GetUserID()]
	if !ok {
		set = make(map[string]Client)
		g.members[c.GetUserID()] = set
	}
	set[c.GetConnID()] = c
}

// Leave removes the connection from its user's group. The connection stays
// tracked and still receives global broadcasts.
func (g *Groups) Leave(c Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leave(c)
}

func (g *Groups) leave(c Client) {
	set, ok := g.members[c.GetUserID()]
	if !ok {
		return
	}
	delete(set, c.GetConnID())
	if len(set) == 0 {
		delete(g.members, c.GetUserID())
	}
}

// Remove forgets the connection and closes it. Only the first call for a
// connection closes it; later calls return false.
func (g *Groups) Remove(c Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[c.GetConnID()]; !ok {
		return false
	}
	g.leave(c)
	delete(g.conns, c.GetConnID())
	c.Close()
	return true
}

// Deliver pushes ev to every connection in userID's group and returns how
// many accepted it. An empty group is not an error.
func (g *Groups) Deliver(userID string, ev protocol.Outbound) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	delivered := 0
	for _, c := range g.members[userID] {
		if g.send(c, ev) {
			delivered++
		}
	}
	return delivered
}

// Broadcast pushes ev to every tracked connection except those of skipUserID.
func (g *Groups) Broadcast(ev protocol.Outbound, skipUserID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	delivered := 0
	for _, c := range g.conns {
		if skipUserID != "" && c.GetUserID() == skipUserID {
			continue
		}
		if g.send(c, ev) {
			delivered++
		}
	}
	return delivered
}

// SendTo pushes ev to one connection if it is still tracked.
func (g *Groups) SendTo(c Client, ev protocol.Outbound) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[c.GetConnID()]; !ok {
		return false
	}
	return g.send(c, ev)
}

// Members returns the number of connections in userID's group.
func (g *Groups) Members(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members[userID])
}

// Connections returns the number of tracked connections.
func (g *Groups) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// CloseAll closes and forgets every connection.
func (g *Groups) CloseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for connID, c := range g.conns {
		c.Close()
		delete(g.conns, connID)
	}
	g.members = make(map[string]map[string]Client)
}

// send must be called with mu held.
func (g *Groups) send(c Client, ev protocol.Outbound) bool {
	select {
	case c.GetSendChannel() <- ev:
		return true
	default:
		g.log.Warn("send buffer full, dropping event",
			zap.String("user_id", c.GetUserID()),
			zap.String("conn_id", c.GetConnID()),
			zap.String("event", string(ev.Kind())),
		)
		return false
	}
}
