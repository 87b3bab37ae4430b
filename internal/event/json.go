package event

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON form of an event on the wire (websocket stream, replay output).
type Envelope struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`
	Data Event     `json:"data"`
}

func Wrap(e Event) Envelope {
	return Envelope{Kind: e.Kind(), Time: e.Time(), Data: e}
}

// Marshal encodes e as a single JSON envelope.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(Wrap(e))
}
