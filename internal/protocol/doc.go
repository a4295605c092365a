// Package protocol defines the wire model of the bridge: request messages
// awaiting correlation, the inbound frame shape shared by responses and pushed
// events, ordered call parameters and the structured protocol error.
//
// Request frame:
//
//	{"id": 7, "method": "Page.navigate", "params": {...}, "sessionId": "S1"}
//
// Inbound frames carry an id when they answer a request and a method when they
// are pushed events. JSON encoding goes through bytedance/sonic.
package protocol
