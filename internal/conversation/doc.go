// Package conversation holds the authoritative state for every active
// customer conversation and the handoff lifecycle that moves each one
// between the bot and human agents.
//
// # Lifecycle
//
// A conversation is created lazily, in state Bot, the first time a message
// from a customer conversation id is observed. The legal transitions are:
//
//	Bot --help--> Waiting --waiting/connect--> Agent --disconnect--> Bot
//	any --watch--> Watch --disconnect--> Bot
//
// Bot is both the initial state and the state after every disconnect; the
// machine is cyclic and has no terminal state. An agent address is present
// exactly when the state is Agent or Watch.
//
// # Registry
//
// The Registry owns all conversations and serializes every lookup,
// transcript append, and transition behind one RWMutex. Compound operations
// that must be atomic, such as claiming the longest-waiting customer, are
// single critical sections:
//
//	reg := conversation.NewRegistry(archive, conversation.Limits{}, logger)
//	conv, created := reg.GetOrCreate(id, addr, name)
//	if reg.RequestAgent(conv) { ... } // Bot -> Waiting, edge-triggered
//	claimed, ok := reg.ClaimLongestWaiting(agentConvID, agentAddr)
//
// Lookup misses are absence returns, never errors: an agent with no active
// conversation is an expected, common case.
//
// # Transcript
//
// Every routed message is appended to its conversation's transcript exactly
// once, in chronological order, and entries are never mutated afterwards.
// When an Archiver is configured each line is also written to durable
// storage after the in-memory commit.
package conversation
