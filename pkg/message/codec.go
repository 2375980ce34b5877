package message

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is wrapped by every decoding error.
var ErrMalformed = errors.New("malformed encoding")

const (
	fieldAuthor    protowire.Number = 1
	fieldTimestamp protowire.Number = 2
	fieldText      protowire.Number = 3
	fieldImage     protowire.Number = 4

	fieldBacklogMessage protowire.Number = 1
	fieldJoinUsername   protowire.Number = 1
)

// Marshal encodes m in protobuf wire format.
func Marshal(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return appendMessage(nil, m), nil
}

func appendMessage(out []byte, m Message) []byte {
	out = protowire.AppendTag(out, fieldAuthor, protowire.BytesType)
	out = protowire.AppendString(out, m.Author)
	out = protowire.AppendTag(out, fieldTimestamp, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.Timestamp))
	switch m.Payload.kind {
	case KindText:
		out = protowire.AppendTag(out, fieldText, protowire.BytesType)
		out = protowire.AppendString(out, m.Payload.text)
	case KindImage:
		out = protowire.AppendTag(out, fieldImage, protowire.BytesType)
		out = protowire.AppendBytes(out, m.Payload.image)
	}
	return out
}

// Unmarshal decodes a Message produced by Marshal.
// Exactly one of the text or image fields must be present.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	var sawText, sawImage bool
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldAuthor && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Author = v
			return n, nil
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Timestamp = Timestamp(v)
			return n, nil
		case num == fieldText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Payload = TextPayload(v)
			sawText = true
			return n, nil
		case num == fieldImage && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.Payload = ImagePayload(v)
			sawImage = true
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return Message{}, err
	}
	if sawText && sawImage {
		return Message{}, fmt.Errorf("%w: message has both text and image", ErrMalformed)
	}
	if err := m.Validate(); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// MarshalBacklog encodes a sequence of messages as one blob.
func MarshalBacklog(ms []Message) ([]byte, error) {
	var out []byte
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		out = protowire.AppendTag(out, fieldBacklogMessage, protowire.BytesType)
		out = protowire.AppendBytes(out, appendMessage(nil, m))
	}
	return out, nil
}

func UnmarshalBacklog(data []byte) ([]Message, error) {
	var ret []Message
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldBacklogMessage || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		m, err := Unmarshal(v)
		if err != nil {
			return 0, err
		}
		ret = append(ret, m)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// MarshalJoin encodes the username a client wants to join with.
func MarshalJoin(username string) []byte {
	out := protowire.AppendTag(nil, fieldJoinUsername, protowire.BytesType)
	return protowire.AppendString(out, username)
}

func UnmarshalJoin(data []byte) (string, error) {
	var username string
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldJoinUsername && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			username = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return "", err
	}
	if username == "" {
		return "", fmt.Errorf("%w: empty username", ErrMalformed)
	}
	return username, nil
}

// forEachField calls fn with the bytes following each tag. fn returns how many bytes it consumed,
// or a negative protowire error code.
func forEachField(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		data = data[m:]
	}
	return nil
}
