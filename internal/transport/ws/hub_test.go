// ABOUTME: Unit tests for the session hub and its capability implementations
// ABOUTME: Covers send, classification, codec, and bot continuation behavior

package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/handoff-gateway/internal/conversation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(role, id, name string) *session {
	return &session{
		addr: conversation.Address(role + ":" + id),
		role: role,
		name: name,
		send: make(chan outboundFrame, sendBufferSize),
		done: make(chan struct{}),
	}
}

func TestHubSend(t *testing.T) {
	hub := NewHub(nil, testLogger())
	sess := newSession(RoleCustomer, "alice", "Alice")
	hub.register(sess)

	err := hub.Send(context.Background(), sess.addr, "hello")
	require.NoError(t, err)

	frame := <-sess.send
	assert.Equal(t, "hello", frame.Text)
	assert.Empty(t, frame.From)
}

func TestHubSend_NoSession(t *testing.T) {
	hub := NewHub(nil, testLogger())

	err := hub.Send(context.Background(), "customer:ghost", "hello")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestHubSend_QueueFull(t *testing.T) {
	hub := NewHub(nil, testLogger())
	sess := newSession(RoleCustomer, "alice", "Alice")
	sess.send = make(chan outboundFrame) // no buffer, nobody reading
	hub.register(sess)

	err := hub.Send(context.Background(), sess.addr, "hello")
	assert.ErrorIs(t, err, ErrSessionBusy)
}

func TestHubIsAgent(t *testing.T) {
	hub := NewHub(nil, testLogger())
	hub.register(newSession(RoleAgent, "amy", "Amy"))
	hub.register(newSession(RoleCustomer, "alice", "Alice"))

	assert.True(t, hub.IsAgent("agent:amy"))
	assert.False(t, hub.IsAgent("customer:alice"))
	assert.False(t, hub.IsAgent("agent:unknown"), "unknown addresses are never agents")
}

func TestHubDisplayName(t *testing.T) {
	hub := NewHub(nil, testLogger())
	hub.register(newSession(RoleCustomer, "s-1", "Alice Jones"))
	hub.register(newSession(RoleCustomer, "s-2", ""))

	assert.Equal(t, "Alice Jones", hub.DisplayName("customer:s-1"))
	assert.Equal(t, "s-2", hub.DisplayName("customer:s-2"), "falls back to the address id part")
	assert.Equal(t, "gone", hub.DisplayName("customer:gone"))
}

func TestHubConversationID(t *testing.T) {
	hub := NewHub(nil, testLogger())
	assert.Equal(t, "customer:alice", hub.ConversationID("customer:alice"))
}

func TestHubContinue(t *testing.T) {
	hub := NewHub(nil, testLogger())

	err := hub.Continue(context.Background(), "customer:alice", "Hi")
	assert.ErrorIs(t, err, ErrNoBot)

	bot := newSession(RoleBot, "main", "")
	hub.register(bot)

	require.NoError(t, hub.Continue(context.Background(), "customer:alice", "Hi"))
	frame := <-bot.send
	assert.Equal(t, "customer:alice", frame.From)
	assert.Equal(t, "Hi", frame.Text)
}

func TestHubRegister_ReplacesSession(t *testing.T) {
	hub := NewHub(nil, testLogger())
	old := newSession(RoleAgent, "amy", "Amy")
	hub.register(old)

	replacement := newSession(RoleAgent, "amy", "Amy")
	hub.register(replacement)

	select {
	case <-old.done:
	default:
		t.Fatal("replaced session was not signalled to close")
	}
	assert.Equal(t, 1, hub.SessionCount())

	// Unregistering the stale session must not evict the replacement.
	hub.unregister(old)
	assert.Equal(t, 1, hub.SessionCount())

	hub.unregister(replacement)
	assert.Equal(t, 0, hub.SessionCount())
}
