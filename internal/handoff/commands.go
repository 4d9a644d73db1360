// ABOUTME: Agent command interpreter: options, list, history, waiting, connect, watch, disconnect
// ABOUTME: Command replies go only to the issuing agent and are never forwarded

package handoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/campuschat/handoff-gateway/internal/conversation"
)

// Lookup-miss replies. Expected conditions, not faults.
const (
	replyNoWaiting  = "No customers waiting."
	replyWentWrong  = "something went wrong."
	replyNoListings = "No active conversations."
)

const optionsText = `Agent commands:
  options           show this help
  list              list all conversations and their states
  history [name]    replay a conversation transcript
  waiting           connect to the longest-waiting customer
  connect [name]    connect to a customer by name
  watch <name>      silently monitor a customer's bot conversation
  disconnect        return your customer to the bot`

// handleAgent runs the agent branch of the interpreter. The first
// whitespace-delimited token selects a command by exact, case-sensitive
// match. Anything else is forwarded to the agent's customer while attached
// in state Agent, and otherwise answered with the options help.
func (p *Pipeline) handleAgent(ctx context.Context, from conversation.Address, text string) {
	agentConvID := p.codec.ConversationID(from)

	fields := strings.Fields(text)
	var command, argument string
	if len(fields) > 0 {
		command = fields[0]
		argument = strings.Join(fields[1:], " ")
	}

	switch command {
	case "options":
		p.reply(ctx, from, optionsText)

	case "list":
		p.listConversations(ctx, from)

	case "history":
		p.replayHistory(ctx, from, agentConvID, argument)

	case "waiting":
		p.claimWaiting(ctx, from, agentConvID)

	case "connect":
		p.connect(ctx, from, agentConvID, argument)

	case "watch":
		p.watch(ctx, from, agentConvID, argument)

	case "disconnect":
		if conv, ok := p.registry.Detach(agentConvID); ok {
			p.reply(ctx, from, fmt.Sprintf("Customer %s is now connected to the bot.", conv.CustomerName))
			p.countHandoff("disconnected")
		}

	default:
		conv, ok := p.registry.FindByAgentConversationID(agentConvID)
		if ok && p.registry.StateOf(conv) == conversation.StateAgent {
			p.forwardAgentText(ctx, conv, text)
			return
		}
		p.reply(ctx, from, optionsText)
	}
}

// listConversations replies with one summary line per conversation, in
// insertion order.
func (p *Pipeline) listConversations(ctx context.Context, from conversation.Address) {
	all := p.registry.ListAll()
	if len(all) == 0 {
		p.reply(ctx, from, replyNoListings)
		return
	}

	var b strings.Builder
	for i, s := range all {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.CustomerName)
		b.WriteByte(' ')
		b.WriteString(s.State.Description())
	}
	p.reply(ctx, from, b.String())
}

// replayHistory sends every transcript line of the target conversation back
// to the issuing agent, one message per line, in chronological order. With
// no argument the target is the agent's own attached conversation.
func (p *Pipeline) replayHistory(ctx context.Context, from conversation.Address, agentConvID, name string) {
	var conv *conversation.Conversation
	var ok bool
	if name != "" {
		conv, ok = p.registry.FindByCustomerName(name)
	} else {
		conv, ok = p.registry.FindByAgentConversationID(agentConvID)
	}
	if !ok {
		p.reply(ctx, from, replyWentWrong)
		return
	}

	for _, line := range p.registry.Lines(conv) {
		p.reply(ctx, from, fmt.Sprintf("%s %s: %s",
			line.Timestamp.Format("15:04:05"), line.From, line.Text))
	}
}

// claimWaiting connects the agent to the longest-waiting customer. The find
// and the attach are one atomic registry operation, so two agents racing to
// type "waiting" cannot both be connected to the same customer.
func (p *Pipeline) claimWaiting(ctx context.Context, from conversation.Address, agentConvID string) {
	conv, ok := p.registry.ClaimLongestWaiting(agentConvID, from)
	if !ok {
		p.reply(ctx, from, replyNoWaiting)
		return
	}
	p.reply(ctx, from, "You are connected to "+conv.CustomerName)
	p.countHandoff("connected")
}

// connect attaches the agent to the named customer's conversation. With no
// name it re-attaches to the agent's current conversation, which also
// upgrades a watch into a live connection.
func (p *Pipeline) connect(ctx context.Context, from conversation.Address, agentConvID, name string) {
	var conv *conversation.Conversation
	var ok bool
	if name != "" {
		conv, ok = p.registry.FindByCustomerName(name)
	} else {
		conv, ok = p.registry.FindByAgentConversationID(agentConvID)
	}
	if !ok {
		p.reply(ctx, from, replyWentWrong)
		return
	}

	p.registry.Attach(conv, agentConvID, from, false)
	p.reply(ctx, from, "You are connected to "+conv.CustomerName)
	p.countHandoff("connected")
}

// watch attaches the agent as a silent observer of the named customer's
// conversation. The customer is not notified.
func (p *Pipeline) watch(ctx context.Context, from conversation.Address, agentConvID, name string) {
	conv, ok := p.registry.FindByCustomerName(name)
	if !ok {
		p.reply(ctx, from, replyWentWrong)
		return
	}

	p.registry.Attach(conv, agentConvID, from, true)
	p.reply(ctx, from, "You are now monitoring "+conv.CustomerName)
	p.countHandoff("watching")
}
