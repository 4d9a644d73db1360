// ABOUTME: Session hub implementing the pipeline's Transport, AddressCodec, and BotContinuation
// ABOUTME: Tracks connected customer, agent, and bot sessions by routable address

package ws

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/campuschat/handoff-gateway/internal/conversation"
	"github.com/campuschat/handoff-gateway/internal/metrics"
)

// Session roles. The role is declared in the hello frame and fixed for the
// session's lifetime.
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleBot      = "bot"
)

// sendBufferSize is the per-session outbound queue. A session that cannot
// drain it loses messages rather than blocking the router.
const sendBufferSize = 64

var (
	// ErrNoSession means no connected session owns the target address.
	ErrNoSession = errors.New("no session for address")

	// ErrNoBot means no bot session is connected to continue the pipeline.
	ErrNoBot = errors.New("no bot session connected")

	// ErrSessionBusy means the session's outbound queue is full.
	ErrSessionBusy = errors.New("session send queue full")
)

// outboundFrame is what the hub writes to a session's socket.
type outboundFrame struct {
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// session is one connected WebSocket peer. The write pump owns conn writes;
// everything else enqueues through send.
type session struct {
	addr conversation.Address
	role string
	name string
	send chan outboundFrame

	done      chan struct{}
	closeOnce sync.Once
}

// closeDone signals the write pump to stop. Safe to call more than once.
func (s *session) closeDone() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub is the registry of live sessions. It implements handoff.Transport,
// handoff.AddressCodec, and handoff.BotContinuation, so the pipeline's
// injected capabilities are all backed by the same connection table.
type Hub struct {
	mu       sync.RWMutex
	sessions map[conversation.Address]*session

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHub creates an empty hub. metrics may be nil; pass nil logger for
// default.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[conversation.Address]*session),
		metrics:  m,
		logger:   logger.With("component", "ws"),
	}
}

// register adds a session, replacing (and closing) any previous session with
// the same address.
func (h *Hub) register(s *session) {
	h.mu.Lock()
	prev := h.sessions[s.addr]
	h.sessions[s.addr] = s
	h.mu.Unlock()

	if prev != nil {
		prev.closeDone()
		h.logger.Warn("session replaced", "addr", string(s.addr))
	}
	if h.metrics != nil {
		h.metrics.Sessions.WithLabelValues(s.role).Inc()
	}
	h.logger.Info("session connected",
		"addr", string(s.addr),
		"role", s.role,
		"name", s.name)
}

// unregister removes a session if it is still the current owner of its
// address.
func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	current := h.sessions[s.addr] == s
	if current {
		delete(h.sessions, s.addr)
	}
	h.mu.Unlock()

	if !current {
		return
	}
	if h.metrics != nil {
		h.metrics.Sessions.WithLabelValues(s.role).Dec()
	}
	h.logger.Info("session disconnected", "addr", string(s.addr), "role", s.role)
}

func (h *Hub) lookup(addr conversation.Address) (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[addr]
	return s, ok
}

// Send delivers text to the session owning the address. Fire-and-forget:
// the enqueue either succeeds immediately or the message is dropped with an
// error for the caller to log.
func (h *Hub) Send(_ context.Context, to conversation.Address, text string) error {
	s, ok := h.lookup(to)
	if !ok {
		return ErrNoSession
	}

	select {
	case s.send <- outboundFrame{Text: text}:
		return nil
	default:
		return ErrSessionBusy
	}
}

// IsAgent classifies a sender by the role its session declared at connect
// time. Unknown addresses are never agents.
func (h *Hub) IsAgent(sender conversation.Address) bool {
	s, ok := h.lookup(sender)
	return ok && s.role == RoleAgent
}

// ConversationID extracts the stable conversation id from an address. The
// hub's addresses are "role:id", and the whole address is the id: one
// conversation per connected peer identity.
func (h *Hub) ConversationID(a conversation.Address) string {
	return string(a)
}

// DisplayName returns the name the session declared, falling back to the id
// part of the address for sessions that never said hello (or are gone).
func (h *Hub) DisplayName(a conversation.Address) string {
	if s, ok := h.lookup(a); ok && s.name != "" {
		return s.name
	}
	if _, id, ok := strings.Cut(string(a), ":"); ok {
		return id
	}
	return string(a)
}

// Continue hands a customer message to a connected bot session. The frame
// carries the customer's address so the bot can reply to the right
// conversation.
func (h *Hub) Continue(_ context.Context, customer conversation.Address, text string) error {
	bot, ok := h.anyBot()
	if !ok {
		return ErrNoBot
	}

	select {
	case bot.send <- outboundFrame{From: string(customer), Text: text}:
		return nil
	default:
		return ErrSessionBusy
	}
}

func (h *Hub) anyBot() (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.role == RoleBot {
			return s, true
		}
	}
	return nil, false
}

// SessionCount returns the number of connected sessions, for diagnostics.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
