// ABOUTME: Pipeline is the entry point for every message the transport observes
// ABOUTME: Classifies the sender and dispatches to the interpreter or the router

package handoff

import (
	"context"
	"log/slog"
	"strings"

	"github.com/campuschat/handoff-gateway/internal/conversation"
	"github.com/campuschat/handoff-gateway/internal/metrics"
)

// helpKeyword is the customer-side trigger that requests a human agent. It
// is only a command while the conversation is in state Bot; in every other
// state the word is ordinary conversation content.
const helpKeyword = "help"

// noticeConnecting is sent to the customer exactly once, on the Bot to
// Waiting transition edge.
const noticeConnecting = "Connecting you to the next available agent."

// Transport fires text messages at routable addresses and classifies
// senders. Both calls are externally supplied capabilities: the pipeline
// treats IsAgent as ground truth and does not rely on Send's result beyond
// logging it.
type Transport interface {
	Send(ctx context.Context, to conversation.Address, text string) error
	IsAgent(sender conversation.Address) bool
}

// AddressCodec extracts the stable conversation id and the human-readable
// display name embedded in a routable address.
type AddressCodec interface {
	ConversationID(a conversation.Address) string
	DisplayName(a conversation.Address) string
}

// BotContinuation hands a customer message back to the bot's own pipeline
// for the normal bot/customer exchange. The pipeline does not inspect what
// happens inside.
type BotContinuation interface {
	Continue(ctx context.Context, customer conversation.Address, text string) error
}

// Pipeline routes every inbound and bot-outbound message according to the
// conversation's handoff state. It never returns errors across its boundary:
// failures are terminal at the point of detection, logged, and answered with
// a user-facing reply where one applies.
type Pipeline struct {
	registry  *conversation.Registry
	transport Transport
	codec     AddressCodec
	bot       BotContinuation
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Pipeline. metrics may be nil; pass nil logger for default.
func New(registry *conversation.Registry, transport Transport, codec AddressCodec, bot BotContinuation, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry:  registry,
		transport: transport,
		codec:     codec,
		bot:       bot,
		metrics:   m,
		logger:    logger.With("component", "handoff"),
	}
}

// HandleInbound processes a message received by the transport from either a
// customer or an agent.
func (p *Pipeline) HandleInbound(ctx context.Context, from conversation.Address, text string) {
	if p.transport.IsAgent(from) {
		p.countInbound("agent")
		p.handleAgent(ctx, from, text)
		return
	}
	p.countInbound("customer")
	p.handleCustomer(ctx, from, text)
}

// handleCustomer runs the customer branch of the interpreter and falls
// through to the router for anything that is not the help trigger.
func (p *Pipeline) handleCustomer(ctx context.Context, from conversation.Address, text string) {
	conv, _ := p.registry.GetOrCreate(p.codec.ConversationID(from), from, p.codec.DisplayName(from))

	if strings.TrimSpace(text) == helpKeyword {
		// RequestAgent only succeeds from state Bot, so a second help while
		// already Waiting falls through as ordinary text and the notice is
		// never repeated.
		if p.registry.RequestAgent(conv) {
			p.registry.Append(ctx, conv, conversation.OriginCustomer, text)
			p.reply(ctx, from, noticeConnecting)
			p.countHandoff("waiting")
			return
		}
	}

	p.routeCustomer(ctx, conv, text)
}

// HandleAgentDisconnect returns an agent's conversation to the bot when the
// agent's transport session goes away without an explicit disconnect
// command. No-op for agents holding no conversation.
func (p *Pipeline) HandleAgentDisconnect(ctx context.Context, from conversation.Address) {
	conv, ok := p.registry.Detach(p.codec.ConversationID(from))
	if !ok {
		return
	}
	p.countHandoff("disconnected")
	p.logger.Info("agent session closed, customer returned to bot",
		"customer_id", conv.CustomerID,
		"customer_name", conv.CustomerName)
}

// reply sends a message back to the issuer of the text that produced it.
// Delivery is fire-and-forget: a failed send is logged and the committed
// conversation state stands.
func (p *Pipeline) reply(ctx context.Context, to conversation.Address, text string) {
	if err := p.transport.Send(ctx, to, text); err != nil {
		p.logger.Warn("send failed",
			"error", err,
			"to", string(to))
	}
}

func (p *Pipeline) countInbound(origin string) {
	if p.metrics != nil {
		p.metrics.Inbound.WithLabelValues(origin).Inc()
	}
}

func (p *Pipeline) countForward(destination string) {
	if p.metrics != nil {
		p.metrics.Forwards.WithLabelValues(destination).Inc()
	}
}

func (p *Pipeline) countDropped(reason string) {
	if p.metrics != nil {
		p.metrics.Dropped.WithLabelValues(reason).Inc()
	}
}

func (p *Pipeline) countHandoff(kind string) {
	if p.metrics != nil {
		p.metrics.Handoffs.WithLabelValues(kind).Inc()
	}
}
