package message

import (
	"encoding/json"
	"fmt"
)

type jsonMessage struct {
	Author    string    `json:"author"`
	Timestamp Timestamp `json:"timestamp"`
	Text      *string   `json:"text,omitempty"`
	Image     []byte    `json:"image,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	x := jsonMessage{Author: m.Author, Timestamp: m.Timestamp}
	switch m.Payload.kind {
	case KindText:
		text := m.Payload.text
		x.Text = &text
	case KindImage:
		x.Image = m.Payload.image
	}
	return json.Marshal(x)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var x jsonMessage
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	switch {
	case x.Text != nil && x.Image != nil:
		return fmt.Errorf("%w: message has both text and image", ErrMalformed)
	case x.Text != nil:
		*m = NewText(x.Author, x.Timestamp, *x.Text)
	case x.Image != nil:
		*m = NewImage(x.Author, x.Timestamp, x.Image)
	default:
		return fmt.Errorf("%w: message has neither text nor image", ErrMalformed)
	}
	return m.Validate()
}
