package instagram

import (
	"errors"
	"time"
)

// Event is the body of a messaging webhook delivery.
type Event struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string      `json:"id"` // the business account the event is for
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

type Messaging struct {
	Sender    Party    `json:"sender"`
	Recipient Party    `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message"`
}

type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// Inbound is the first message of a delivery, flattened.
type Inbound struct {
	AccountID string `validate:"required"`
	SenderID  string `validate:"required"`
	MessageID string
	Text      string `validate:"required"`
	IsEcho    bool
}

var errNoMessage = errors.New("event carries no message")

// FirstMessage extracts entry[0].messaging[0].
func (e Event) FirstMessage() (Inbound, error) {
	if len(e.Entry) == 0 || len(e.Entry[0].Messaging) == 0 {
		return Inbound{}, errNoMessage
	}
	m := e.Entry[0].Messaging[0]
	if m.Message == nil {
		return Inbound{}, errNoMessage
	}
	return Inbound{
		AccountID: e.Entry[0].ID,
		SenderID:  m.Sender.ID,
		MessageID: m.Message.MID,
		Text:      m.Message.Text,
		IsEcho:    m.Message.IsEcho,
	}, nil
}

// ProcessDM is the payload of a process_dm task.
type ProcessDM struct {
	TenantID   int64     `json:"tenant_id" validate:"required"`
	SenderID   string    `json:"sender_id" validate:"required"`
	MessageID  string    `json:"message_id,omitempty"`
	Text       string    `json:"text" validate:"required"`
	ReceivedAt time.Time `json:"received_at"`
}
