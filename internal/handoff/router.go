// ABOUTME: Message router: state-dependent forwarding of non-command traffic
// ABOUTME: Each branch records to the transcript exactly once per message

package handoff

import (
	"context"

	"github.com/campuschat/handoff-gateway/internal/conversation"
)

// routeCustomer forwards a customer message according to the conversation's
// current state. Watch is the only state where a message fans out to two
// destinations; even then the transcript is appended once.
func (p *Pipeline) routeCustomer(ctx context.Context, conv *conversation.Conversation, text string) {
	state := p.registry.StateOf(conv)
	p.registry.Append(ctx, conv, conversation.OriginCustomer, text)

	switch state {
	case conversation.StateBot:
		p.continueBot(ctx, conv, text)

	case conversation.StateWaiting:
		// Acknowledged once on the transition edge; while waiting the
		// customer is neither answered by the bot nor re-acknowledged.
		p.logger.Debug("customer message held while waiting",
			"customer_id", conv.CustomerID)
		p.countDropped("waiting")

	case conversation.StateWatch:
		p.continueBot(ctx, conv, text)
		if agent, ok := p.registry.AgentAddress(conv); ok {
			p.reply(ctx, agent, text)
			p.countForward("agent")
		} else {
			p.logger.Error("conversation in watch state has no agent address",
				"customer_id", conv.CustomerID)
			p.countDropped("missing_agent_address")
		}

	case conversation.StateAgent:
		agent, ok := p.registry.AgentAddress(conv)
		if !ok {
			// Data inconsistency: do not crash, do not auto-repair.
			p.logger.Error("conversation in agent state has no agent address",
				"customer_id", conv.CustomerID,
				"customer_name", conv.CustomerName)
			p.countDropped("missing_agent_address")
			return
		}
		p.reply(ctx, agent, text)
		p.countForward("agent")

	default:
		p.logger.Error("conversation in unknown state",
			"customer_id", conv.CustomerID,
			"state", string(state))
		p.countDropped("unknown_state")
	}
}

// continueBot hands the message back to the bot pipeline.
func (p *Pipeline) continueBot(ctx context.Context, conv *conversation.Conversation, text string) {
	if err := p.bot.Continue(ctx, conv.CustomerAddress, text); err != nil {
		p.logger.Warn("bot continuation failed",
			"error", err,
			"customer_id", conv.CustomerID)
		return
	}
	p.countForward("bot")
}

// forwardAgentText forwards free text typed by an attached agent to their
// customer. Agents typing to a customer they are not connected to are
// dropped silently by the caller.
func (p *Pipeline) forwardAgentText(ctx context.Context, conv *conversation.Conversation, text string) {
	p.registry.Append(ctx, conv, conversation.OriginAgent, text)
	p.reply(ctx, conv.CustomerAddress, text)
	p.countForward("customer")
}

// HandleBotMessage processes a message the bot pipeline emits toward a
// customer. The line is always recorded to that customer's transcript,
// delivered to the customer, and additionally mirrored to the observing
// agent when the conversation is being watched.
func (p *Pipeline) HandleBotMessage(ctx context.Context, to conversation.Address, text string) {
	p.countInbound("bot")

	conv, _ := p.registry.GetOrCreate(p.codec.ConversationID(to), to, p.codec.DisplayName(to))
	p.registry.Append(ctx, conv, conversation.OriginAgent, text)

	p.reply(ctx, conv.CustomerAddress, text)
	p.countForward("customer")

	if p.registry.StateOf(conv) == conversation.StateWatch {
		if agent, ok := p.registry.AgentAddress(conv); ok {
			p.reply(ctx, agent, text)
			p.countForward("agent")
		}
	}
}
