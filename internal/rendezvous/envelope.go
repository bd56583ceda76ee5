package rendezvous

import (
	"encoding/json"

	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/wireproto"
)

func marshalEnvelope(envelope *wireproto.WebSocketMessage) ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "rendezvous.marshalEnvelope", err)
	}
	return data, nil
}

func unmarshalEnvelope(data []byte, dst *wireproto.WebSocketMessage) error {
	return json.Unmarshal(data, dst)
}
