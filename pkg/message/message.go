package message

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Timestamp is a point in time with millisecond resolution, counted from the Unix epoch.
type Timestamp int64

// Epoch is the zero cursor: every stored message is after it.
const Epoch Timestamp = 0

func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

func Now() Timestamp {
	return FromTime(time.Now())
}

func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts))
}

// Kind identifies which variant of a Payload is populated.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindText
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return "invalid"
	}
}

// Payload is either text or an image. The zero Payload is invalid.
type Payload struct {
	kind  Kind
	text  string
	image []byte
}

func TextPayload(x string) Payload {
	return Payload{kind: KindText, text: x}
}

// ImagePayload copies data, so the caller may reuse its buffer.
func ImagePayload(data []byte) Payload {
	return Payload{kind: KindImage, image: append([]byte{}, data...)}
}

func (p Payload) Kind() Kind {
	return p.kind
}

func (p Payload) Text() (string, bool) {
	return p.text, p.kind == KindText
}

func (p Payload) Image() ([]byte, bool) {
	return p.image, p.kind == KindImage
}

func (p Payload) Equal(q Payload) bool {
	if p.kind != q.kind {
		return false
	}
	switch p.kind {
	case KindText:
		return p.text == q.text
	case KindImage:
		return bytes.Equal(p.image, q.image)
	default:
		return true
	}
}

func (p Payload) String() string {
	switch p.kind {
	case KindText:
		return p.text
	case KindImage:
		return fmt.Sprintf("<image %d bytes>", len(p.image))
	default:
		return "<invalid>"
	}
}

// Message is the unit of exchange. It is immutable once created.
type Message struct {
	Author    string
	Timestamp Timestamp
	Payload   Payload
}

func NewText(author string, at Timestamp, text string) Message {
	return Message{Author: author, Timestamp: at, Payload: TextPayload(text)}
}

func NewImage(author string, at Timestamp, data []byte) Message {
	return Message{Author: author, Timestamp: at, Payload: ImagePayload(data)}
}

var (
	ErrNoAuthor       = errors.New("message has no author")
	ErrInvalidPayload = errors.New("message payload is neither text nor image")
)

func (m Message) Validate() error {
	if m.Author == "" {
		return ErrNoAuthor
	}
	if m.Payload.kind != KindText && m.Payload.kind != KindImage {
		return ErrInvalidPayload
	}
	return nil
}

func (m Message) Equal(other Message) bool {
	return m.Author == other.Author &&
		m.Timestamp == other.Timestamp &&
		m.Payload.Equal(other.Payload)
}

func (m Message) String() string {
	return fmt.Sprintf("[%d] %s: %v", m.Timestamp, m.Author, m.Payload)
}

// Compare orders messages by timestamp only.
// Two messages with equal timestamps compare as 0 and are treated as the same record
// when merging histories, whatever their author or payload.
func Compare(a, b Message) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	default:
		return 0
	}
}

func Less(a, b Message) bool {
	return a.Timestamp < b.Timestamp
}

// Latest returns the largest timestamp in ms, or Epoch if ms is empty.
func Latest(ms []Message) Timestamp {
	ret := Epoch
	for _, m := range ms {
		if m.Timestamp > ret {
			ret = m.Timestamp
		}
	}
	return ret
}
