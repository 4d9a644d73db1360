// ABOUTME: Conversation entity, state enum, and transcript line types
// ABOUTME: All mutable fields are owned by the Registry and guarded by its lock

package conversation

import (
	"time"
)

// Address is an opaque routable identifier owned by the messaging transport.
// The registry only stores and compares addresses; it never interprets them.
type Address string

// State is the handoff lifecycle state of a conversation.
type State string

const (
	// StateBot is the initial state: the customer talks to the bot pipeline.
	StateBot State = "bot"

	// StateWaiting means the customer asked for a human and no agent has
	// claimed the conversation yet.
	StateWaiting State = "waiting"

	// StateAgent means a human agent is connected and the bot is bypassed.
	StateAgent State = "agent"

	// StateWatch means an agent silently observes the bot conversation.
	StateWatch State = "watch"
)

// Description returns the human-readable summary used by the agent "list"
// command.
func (s State) Description() string {
	switch s {
	case StateBot:
		return "is talking to the bot"
	case StateWaiting:
		return "is waiting to talk to an agent"
	case StateAgent:
		return "is talking to an agent"
	case StateWatch:
		return "is being monitored by an agent"
	}
	return "is in an unknown state"
}

// Attached reports whether an agent address must be present in this state.
func (s State) Attached() bool {
	return s == StateAgent || s == StateWatch
}

// Origin identifies which side of the conversation produced a transcript line.
type Origin string

const (
	OriginCustomer Origin = "customer"
	OriginAgent    Origin = "agent"
)

// Line is a single transcript entry. Lines are append-only: once recorded
// they are never reordered or mutated.
type Line struct {
	Timestamp time.Time
	From      Origin
	Text      string
}

// Conversation tracks one customer's session through the handoff lifecycle.
//
// The exported fields are set at creation and never change. Everything else
// is owned by the Registry: read and mutate only through Registry methods,
// which serialize access behind the registry lock.
type Conversation struct {
	// CustomerID is the stable conversation id extracted from the customer's
	// address. It is the registry's primary key.
	CustomerID string

	// CustomerAddress is the routable address of the customer's channel.
	CustomerAddress Address

	// CustomerName is the customer's display name, used for agent-facing
	// lookups and summaries.
	CustomerName string

	// CreatedAt is when the first message from this customer was observed.
	CreatedAt time.Time

	state        State
	agentAddress Address
	agentConvID  string
	transcript   []Line
	lastActivity time.Time
}

// Snapshot is an immutable view of a conversation for listings.
type Snapshot struct {
	CustomerID   string
	CustomerName string
	State        State
}
