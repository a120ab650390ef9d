package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the persisted wire form of an AddressEvent. Exactly one
// of External or Internal is set. Sequence is the per-party apply
// order assigned by the node; PartyKey identifies the owning party.
type Envelope struct {
	Sequence   int64       `json:"sequence"`
	PartyKey   string      `json:"party_key"`
	External   *ExternalTx `json:"external,omitempty"`
	Internal   *InternalTx `json:"internal,omitempty"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Wrap builds an Envelope around a concrete AddressEvent.
func Wrap(partyKey string, seq int64, ev AddressEvent, receivedAt time.Time) (Envelope, error) {
	env := Envelope{Sequence: seq, PartyKey: partyKey, ReceivedAt: receivedAt}
	switch e := ev.(type) {
	case *ExternalTx:
		env.External = e
	case *InternalTx:
		env.Internal = e
	default:
		return Envelope{}, fmt.Errorf("unknown address event type %T", ev)
	}
	return env, nil
}

// Event returns the wrapped AddressEvent.
func (env *Envelope) Event() (AddressEvent, error) {
	switch {
	case env.External != nil && env.Internal != nil:
		return nil, fmt.Errorf("envelope seq=%d carries both variants", env.Sequence)
	case env.External != nil:
		return env.External, nil
	case env.Internal != nil:
		return env.Internal, nil
	default:
		return nil, fmt.Errorf("envelope seq=%d carries no event", env.Sequence)
	}
}

// Identifier is the dedup key of the wrapped event.
func (env *Envelope) Identifier() string {
	if env.External != nil {
		return env.External.TxID
	}
	if env.Internal != nil {
		return env.Internal.Tx.Hash
	}
	return ""
}

// Encode serializes the envelope for the event log and the message bus.
func (env *Envelope) Encode() ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEnvelope parses an envelope previously produced by Encode.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event envelope: %w", err)
	}
	return env, nil
}
