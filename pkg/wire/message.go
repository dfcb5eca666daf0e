// Package wire defines the JSON message envelope exchanged on all three
// connection hubs (agent, service, client), the message type names, and the
// legacy alias table that Canonicalize applies before dispatch.
package wire

import (
	"encoding/json"
	"time"
)

// Message is the wire-visible envelope. ID and Type are required on send;
// RequestID is set only on replies and Content may be empty. Timestamp is
// assigned by the sender's side of the kernel on egress, never trusted on
// ingress.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// New builds a Message with the given type and content, stamping the
// timestamp. If id is empty, the caller is expected to have minted one
// upstream (identifier minting lives in internal/common/ids, not here, to
// keep this package free of the uuid dependency).
func New(id, msgType string, content interface{}) (*Message, error) {
	raw, err := marshalContent(content)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Content:   raw,
		Timestamp: nowRFC3339(),
	}, nil
}

// NewReply builds a reply Message whose RequestID points back at requestID.
func NewReply(id, msgType, requestID string, content interface{}) (*Message, error) {
	m, err := New(id, msgType, content)
	if err != nil {
		return nil, err
	}
	m.RequestID = requestID
	return m, nil
}

// NewError builds an {type:"error"} reply carrying a human-readable message
// and, when known, the offending message's id as RequestID.
func NewError(id, requestID, errMsg string) *Message {
	content, _ := json.Marshal(map[string]string{"error": errMsg})
	return &Message{
		ID:        id,
		Type:      TypeError,
		Content:   content,
		RequestID: requestID,
		Timestamp: nowRFC3339(),
	}
}

// IsError reports whether this message is an error reply: either its Type is
// "error", or its content carries an "error" field.
func (m *Message) IsError() bool {
	if m.Type == TypeError {
		return true
	}
	if len(m.Content) == 0 {
		return false
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(m.Content, &probe); err != nil {
		return false
	}
	return probe.Error != ""
}

// ErrorString extracts the error string from an error-shaped message.
func (m *Message) ErrorString() string {
	var probe struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(m.Content, &probe)
	return probe.Error
}

// DecodeContent unmarshals Content into v.
func (m *Message) DecodeContent(v interface{}) error {
	if len(m.Content) == 0 {
		return nil
	}
	return json.Unmarshal(m.Content, v)
}

func marshalContent(content interface{}) (json.RawMessage, error) {
	if content == nil {
		return nil, nil
	}
	if raw, ok := content.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(content)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
