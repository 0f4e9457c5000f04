package telephony

import "context"

// OriginateRequest contains the parameters for placing an outbound call.
type OriginateRequest struct {
	// From is our gateway phone number (E.164).
	From string
	// To is the callee's phone number (E.164).
	To string
	// ClientState is opaque data the gateway echoes back on every webhook
	// event for this call.
	ClientState string
}

// Gateway places outbound calls. Inbound events arrive separately as
// webhooks; the gateway guarantees per-session event ordering.
type Gateway interface {
	// OriginateCall requests the gateway to place a call and returns the
	// gateway-assigned session id.
	OriginateCall(ctx context.Context, req OriginateRequest) (string, error)
}
