// Package handoff routes every message between customers, the bot pipeline,
// and human support agents according to each conversation's lifecycle state.
//
// # Control flow
//
// Every message the transport observes enters through Pipeline.HandleInbound
// (customer or agent sender) or Pipeline.HandleBotMessage (bot outbound).
// Inbound text first passes the command interpreter; text that is not a
// command falls through to the state-dependent router:
//
//   - Bot: customer text continues to the bot pipeline.
//   - Waiting: customer text is recorded and held; the customer was
//     acknowledged once on the transition edge and is not re-acknowledged.
//   - Agent: customer text goes only to the connected agent; agent text goes
//     only to the customer.
//   - Watch: customer text fans out to the bot pipeline and, verbatim, to
//     the observing agent. The only state with two destinations.
//
// Every branch appends to the conversation transcript exactly once per
// message regardless of fan-out.
//
// # Commands
//
// Agents drive the lifecycle with free-text commands (options, list,
// history, waiting, connect, watch, disconnect); customers have exactly one
// trigger, the word "help", which only acts while the conversation is in
// state Bot. Command replies go to the issuer and are never forwarded.
//
// # Boundary
//
// The transport's Send and IsAgent, the bot continuation, and the address
// codec are injected capabilities. Failures inside the pipeline are terminal
// at the point of detection: logged, answered with a user-facing reply where
// one applies, and never propagated as a fault that could abort the
// messaging loop for everyone else.
package handoff
