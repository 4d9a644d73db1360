// ABOUTME: Registry is the single source of truth for active conversations
// ABOUTME: One RWMutex serializes every lookup, transition, and transcript append

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// archiveTimeout bounds each durable transcript write so a slow disk cannot
// stall the message path indefinitely.
const archiveTimeout = 5 * time.Second

// Archiver receives every transcript line for durable storage. The in-memory
// transcript remains the router's source of truth; the archive is an audit
// trail.
type Archiver interface {
	SaveLine(ctx context.Context, customerID string, line Line) error
}

// Limits controls optional growth bounds. The zero value matches the
// historical behavior: no trimming, no expiry.
type Limits struct {
	// MaxTranscriptLines trims the oldest in-memory lines once a transcript
	// exceeds this length. 0 means unbounded.
	MaxTranscriptLines int

	// IdleTTL lets ExpireIdle drop conversations that have sat in state Bot
	// with no activity for this long. 0 means conversations are never
	// expired.
	IdleTTL time.Duration
}

// Registry holds all active conversations and owns every mutation on them.
// The "claim longest waiting" operation is a single critical section so two
// agents racing to claim cannot both win the same customer.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Conversation
	order []*Conversation // insertion order, for ListAll and tie-breaks

	archiver Archiver
	limits   Limits
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. The archiver may be nil, in which
// case transcript lines live only in memory. Pass nil logger for default.
func NewRegistry(archiver Archiver, limits Limits, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:     make(map[string]*Conversation),
		archiver: archiver,
		limits:   limits,
		logger:   logger.With("component", "registry"),
	}
}

// GetOrCreate returns the conversation for the given customer conversation
// id, creating it in state Bot if this is the first message observed from
// that customer. The second return value reports whether a new conversation
// was created. Idempotent: repeated calls with the same id return the same
// conversation.
func (r *Registry) GetOrCreate(customerID string, addr Address, name string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byID[customerID]; ok {
		return c, false
	}

	now := time.Now()
	c := &Conversation{
		CustomerID:      customerID,
		CustomerAddress: addr,
		CustomerName:    name,
		CreatedAt:       now,
		state:           StateBot,
		lastActivity:    now,
	}
	r.byID[customerID] = c
	r.order = append(r.order, c)

	r.logger.Info("conversation created",
		"customer_id", customerID,
		"customer_name", name,
		"total_conversations", len(r.byID))
	return c, true
}

// FindByAgentConversationID returns the conversation currently attached to
// the agent session with the given conversation id, if any. At most one
// conversation can be attached to a given agent session.
func (r *Registry) FindByAgentConversationID(agentConvID string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findByAgentLocked(agentConvID)
}

func (r *Registry) findByAgentLocked(agentConvID string) (*Conversation, bool) {
	if agentConvID == "" {
		return nil, false
	}
	for _, c := range r.order {
		if c.state.Attached() && c.agentConvID == agentConvID {
			return c, true
		}
	}
	return nil, false
}

// FindByCustomerName returns the first conversation whose customer display
// name matches, in insertion order. Best-effort: display names are not
// guaranteed unique.
func (r *Registry) FindByCustomerName(name string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findByNameLocked(name)
}

func (r *Registry) findByNameLocked(name string) (*Conversation, bool) {
	for _, c := range r.order {
		if c.CustomerName == name {
			return c, true
		}
	}
	return nil, false
}

// FindLongestWaiting returns the waiting conversation whose last activity is
// oldest. Ties resolve to the earliest-created conversation, so the result
// is deterministic. Returns false if no conversation is waiting.
func (r *Registry) FindLongestWaiting() (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLongestWaitingLocked()
}

func (r *Registry) findLongestWaitingLocked() (*Conversation, bool) {
	var oldest *Conversation
	for _, c := range r.order {
		if c.state != StateWaiting {
			continue
		}
		if oldest == nil || c.lastActivity.Before(oldest.lastActivity) {
			oldest = c
		}
	}
	return oldest, oldest != nil
}

// ListAll returns a snapshot of every conversation in insertion order.
func (r *Registry) ListAll() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, Snapshot{
			CustomerID:   c.CustomerID,
			CustomerName: c.CustomerName,
			State:        c.state,
		})
	}
	return out
}

// Len returns the number of active conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// WaitingCount returns how many conversations are in state Waiting.
func (r *Registry) WaitingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.order {
		if c.state == StateWaiting {
			n++
		}
	}
	return n
}

// StateOf returns the conversation's current state.
func (r *Registry) StateOf(c *Conversation) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.state
}

// AgentAddress returns the attached agent's address. The second return value
// is false when no agent is attached.
func (r *Registry) AgentAddress(c *Conversation) (Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.agentAddress, c.agentAddress != ""
}

// Append records a transcript line and archives it. The in-memory append is
// committed under the lock before the archiver runs, so the transcript never
// lags a send that was triggered by it.
func (r *Registry) Append(ctx context.Context, c *Conversation, from Origin, text string) {
	line := Line{Timestamp: time.Now(), From: from, Text: text}

	r.mu.Lock()
	c.transcript = append(c.transcript, line)
	c.lastActivity = line.Timestamp
	if limit := r.limits.MaxTranscriptLines; limit > 0 && len(c.transcript) > limit {
		c.transcript = c.transcript[len(c.transcript)-limit:]
	}
	r.mu.Unlock()

	if r.archiver == nil {
		return
	}
	// Detached context: archival must survive cancellation of the request
	// that produced the line.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := r.archiver.SaveLine(saveCtx, c.CustomerID, line); err != nil {
		r.logger.Error("failed to archive transcript line",
			"error", err,
			"customer_id", c.CustomerID,
			"from", line.From)
	}
}

// Lines returns a copy of the conversation's transcript in chronological
// order.
func (r *Registry) Lines(c *Conversation) []Line {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Line, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// RequestAgent transitions the conversation from Bot to Waiting. Returns
// false without side effects if the conversation is in any other state, so a
// repeated help request neither re-transitions nor re-acknowledges.
func (r *Registry) RequestAgent(c *Conversation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.state != StateBot {
		return false
	}
	c.state = StateWaiting
	r.logger.Info("customer waiting for agent",
		"customer_id", c.CustomerID,
		"customer_name", c.CustomerName)
	return true
}

// Attach connects an agent session to the conversation, in state Watch when
// watch is true and state Agent otherwise. If the same agent session is
// attached to another conversation, that one is detached back to Bot first.
func (r *Registry) Attach(c *Conversation, agentConvID string, agentAddr Address, watch bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachLocked(c, agentConvID, agentAddr, watch)
}

func (r *Registry) attachLocked(c *Conversation, agentConvID string, agentAddr Address, watch bool) {
	if prev, ok := r.findByAgentLocked(agentConvID); ok && prev != c {
		r.detachLocked(prev)
	}

	c.state = StateAgent
	if watch {
		c.state = StateWatch
	}
	c.agentConvID = agentConvID
	c.agentAddress = agentAddr

	r.logger.Info("agent attached",
		"customer_id", c.CustomerID,
		"customer_name", c.CustomerName,
		"agent_conversation_id", agentConvID,
		"state", c.state)
}

// Detach returns the conversation held by the given agent session to state
// Bot and clears the agent address. Returns the detached conversation, or
// false if the agent session holds none.
func (r *Registry) Detach(agentConvID string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.findByAgentLocked(agentConvID)
	if !ok {
		return nil, false
	}
	r.detachLocked(c)
	return c, true
}

func (r *Registry) detachLocked(c *Conversation) {
	c.state = StateBot
	c.agentConvID = ""
	c.agentAddress = ""

	r.logger.Info("agent detached",
		"customer_id", c.CustomerID,
		"customer_name", c.CustomerName)
}

// ClaimLongestWaiting finds the longest-waiting conversation and attaches
// the agent to it in state Agent, as one critical section. Two agents racing
// to claim therefore get two different customers (or one gets none).
func (r *Registry) ClaimLongestWaiting(agentConvID string, agentAddr Address) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.findLongestWaitingLocked()
	if !ok {
		return nil, false
	}
	r.attachLocked(c, agentConvID, agentAddr, false)
	return c, true
}

// ExpireIdle removes conversations that have been idle in state Bot longer
// than the configured IdleTTL, and returns how many were removed. Waiting
// customers and attached conversations are never expired. No-op when no TTL
// is configured.
func (r *Registry) ExpireIdle(now time.Time) int {
	if r.limits.IdleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.limits.IdleTTL)
	kept := r.order[:0]
	removed := 0
	for _, c := range r.order {
		if c.state == StateBot && c.lastActivity.Before(cutoff) {
			delete(r.byID, c.CustomerID)
			removed++
			continue
		}
		kept = append(kept, c)
	}
	r.order = kept

	if removed > 0 {
		r.logger.Info("expired idle conversations",
			"removed", removed,
			"remaining", len(r.byID))
	}
	return removed
}
