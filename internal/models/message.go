package models

// MessageKind distinguishes how a message is rendered and notified.
type MessageKind string

const (
	KindChat      MessageKind = "chat"
	KindSystem    MessageKind = "system"
	KindImage     MessageKind = "image"
	KindEmergency MessageKind = "emergency"
)

// Message is one entry of the room's append-only chat log.
// The ID is the store-assigned key and is not part of the stored value.
// Everything except ReadBy is immutable once written.
type Message struct {
	ID        string         `json:"-"`
	Kind      MessageKind    `json:"kind"`
	Sender    Role           `json:"sender"`
	Text      string         `json:"text,omitempty"`
	ImageRef  string         `json:"imageRef,omitempty"`
	Timestamp int64          `json:"timestamp"`
	ReadBy    map[Role]int64 `json:"readBy,omitempty"`
}

// ReadByRole reports whether role has a read receipt on the message.
func (m Message) ReadByRole(role Role) bool {
	_, ok := m.ReadBy[role]
	return ok
}
