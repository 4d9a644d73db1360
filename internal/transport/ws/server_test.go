// ABOUTME: End-to-end tests for the WebSocket server over a real socket
// ABOUTME: Covers the hello handshake, frame dispatch, and agent disconnect

package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/handoff-gateway/internal/conversation"
)

type handlerCall struct {
	Kind string // inbound, bot, agent_gone
	Addr conversation.Address
	Text string
}

// recordingHandler captures pipeline calls and signals each one.
type recordingHandler struct {
	ch chan handlerCall
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan handlerCall, 16)}
}

func (h *recordingHandler) record(c handlerCall) {
	h.ch <- c
}

func (h *recordingHandler) HandleInbound(_ context.Context, from conversation.Address, text string) {
	h.record(handlerCall{Kind: "inbound", Addr: from, Text: text})
}

func (h *recordingHandler) HandleBotMessage(_ context.Context, to conversation.Address, text string) {
	h.record(handlerCall{Kind: "bot", Addr: to, Text: text})
}

func (h *recordingHandler) HandleAgentDisconnect(_ context.Context, from conversation.Address) {
	h.record(handlerCall{Kind: "agent_gone", Addr: from})
}

func (h *recordingHandler) wait(t *testing.T) handlerCall {
	t.Helper()
	select {
	case c := <-h.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler call")
		return handlerCall{}
	}
}

type serverFixture struct {
	hub     *Hub
	handler *recordingHandler
	url     string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	hub := NewHub(nil, testLogger())
	handler := newRecordingHandler()
	srv := NewServer("", hub, handler, "", nil, testLogger())

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(ts.Close)

	return &serverFixture{
		hub:     hub,
		handler: handler,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func (f *serverFixture) dial(t *testing.T, hello helloFrame) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.WriteJSON(hello))
	return conn
}

func TestCustomerFrameDispatch(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t, helloFrame{Role: RoleCustomer, ID: "alice", Name: "Alice"})

	require.NoError(t, conn.WriteJSON(inboundFrame{Text: "Hi"}))

	call := f.handler.wait(t)
	assert.Equal(t, "inbound", call.Kind)
	assert.Equal(t, conversation.Address("customer:alice"), call.Addr)
	assert.Equal(t, "Hi", call.Text)
}

func TestBotFrameDispatch(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t, helloFrame{Role: RoleBot, ID: "main"})

	require.NoError(t, conn.WriteJSON(inboundFrame{To: "customer:alice", Text: "Hello!"}))

	call := f.handler.wait(t)
	assert.Equal(t, "bot", call.Kind)
	assert.Equal(t, conversation.Address("customer:alice"), call.Addr)
	assert.Equal(t, "Hello!", call.Text)
}

func TestServerDeliversToSession(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t, helloFrame{Role: RoleCustomer, ID: "alice", Name: "Alice"})

	// First inbound frame guarantees the session is registered.
	require.NoError(t, conn.WriteJSON(inboundFrame{Text: "Hi"}))
	f.handler.wait(t)

	require.NoError(t, f.hub.Send(context.Background(), "customer:alice", "welcome"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame outboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "welcome", frame.Text)
}

func TestAgentClose_TriggersDisconnect(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t, helloFrame{Role: RoleAgent, ID: "amy", Name: "Amy"})

	require.NoError(t, conn.WriteJSON(inboundFrame{Text: "options"}))
	f.handler.wait(t)

	conn.Close()

	call := f.handler.wait(t)
	assert.Equal(t, "agent_gone", call.Kind)
	assert.Equal(t, conversation.Address("agent:amy"), call.Addr)
}

func TestHandshake_RejectsUnknownRole(t *testing.T) {
	f := newServerFixture(t)
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(helloFrame{Role: "superuser"}))

	// The server drops the connection without registering a session.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, f.hub.SessionCount())
}

func TestBotFrameWithoutDestination_Ignored(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t, helloFrame{Role: RoleBot, ID: "main"})

	require.NoError(t, conn.WriteJSON(inboundFrame{Text: "orphan"}))
	require.NoError(t, conn.WriteJSON(inboundFrame{To: "customer:alice", Text: "ok"}))

	call := f.handler.wait(t)
	assert.Equal(t, "bot", call.Kind, "the destination-less frame was skipped")
	assert.Equal(t, "ok", call.Text)
}
