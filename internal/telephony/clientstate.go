package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ClientState is the opaque payload attached to an outbound call at
// origination. The gateway echoes it on every webhook event for the call,
// which lets a handler relink a session to its appointment even if the
// pre-registered session record was lost.
type ClientState struct {
	AppointmentID string `json:"appointment_id"`
	Kind          string `json:"kind"`
}

// EncodeClientState serializes state for the gateway (base64 JSON).
func EncodeClientState(cs ClientState) (string, error) {
	raw, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("telephony: encode client state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeClientState parses state echoed by the gateway.
func DecodeClientState(encoded string) (ClientState, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ClientState{}, fmt.Errorf("telephony: decode client state: %w", err)
	}
	var cs ClientState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return ClientState{}, fmt.Errorf("telephony: decode client state: %w", err)
	}
	return cs, nil
}
