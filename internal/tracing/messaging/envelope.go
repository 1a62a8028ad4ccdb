package messaging

import (
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// Envelope wraps one business event for transport across the broker. Domain
// data stays in Data; infrastructure concerns such as trace context travel
// as extension attributes, serialized as Kafka headers so the payload is
// never touched.
type Envelope struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Source     string            `json:"source"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Extensions map[string]string `json:"-"`
}

// Clone returns a deep copy so callers can enrich an envelope without
// mutating the original.
func (e Envelope) Clone() Envelope {
	out := e
	out.Extensions = make(map[string]string, len(e.Extensions)+2)
	for k, v := range e.Extensions {
		out.Extensions[k] = v
	}
	return out
}

// Extension returns the named extension attribute, if present.
func (e Envelope) Extension(name string) (string, bool) {
	v, ok := e.Extensions[name]
	return v, ok
}

// Message serializes the envelope into a Kafka message: the event body as
// JSON value, the event id as key, extensions as headers.
func (e Envelope) Message() (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := make([]kafka.Header, 0, len(e.Extensions))
	for k, v := range e.Extensions {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(e.ID),
		Value:   value,
		Headers: headers,
	}, nil
}

// EnvelopeFromMessage rebuilds an envelope from a consumed Kafka message.
// Headers become extension attributes; an unparsable body still yields a
// usable envelope so tracing and error handling can proceed.
func EnvelopeFromMessage(msg kafka.Message) Envelope {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		env = Envelope{ID: string(msg.Key), Type: "unknown", Data: msg.Value}
	}
	env.Extensions = make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		env.Extensions[h.Key] = string(h.Value)
	}
	return env
}
