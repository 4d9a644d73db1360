// Package ws is the WebSocket transport for the handoff pipeline.
//
// Customers, agents, and the bot pipeline all connect to /ws and declare a
// role in their first frame:
//
//	{"role": "customer", "id": "s-1042", "name": "Alice Jones"}
//
// After the hello, customer and agent sessions exchange bare text frames
// ({"text": "..."}); bot sessions receive customer turns tagged with the
// customer's address and reply with addressed frames ({"to": "customer:s-1042",
// "text": "..."}).
//
// The Hub tracks live sessions by address and backs all three capabilities
// the pipeline has injected: Transport (Send, IsAgent), AddressCodec, and
// BotContinuation. Sends are fire-and-forget: a session whose queue is full
// loses the frame rather than stalling the router.
package ws
