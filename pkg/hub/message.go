// Package hub fans dashboard events out to websocket clients using the
// channel-based register/unregister/broadcast loop.
package hub

import "encoding/json"

// Message is one event queued for every client.
type Message struct {
	// Topic groups messages; the hub replays the latest message of each
	// topic to clients that connect later.
	Topic string
	Data  []byte
}

// Envelope is the JSON shape clients receive.
type Envelope struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// NewMessage creates a message from pre-encoded bytes
func NewMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Data: data}
}

// EncodeMessage wraps v in an Envelope and encodes it.
func EncodeMessage(topic string, v any) (Message, error) {
	data, err := json.Marshal(Envelope{Topic: topic, Data: v})
	if err != nil {
		return Message{}, err
	}
	return NewMessage(topic, data), nil
}
