// Package wire implements the framing used between roost clients and the relay server.
//
// A connection starts with a handshake:
//
//	C->S  int64   since (ms)
//	S->C  frame   backlog
//	C->S  frame   join request
//	S->C  byte    1 accepted, 0 username taken
//
// after which both sides exchange frames containing one message each.
// All integers are big-endian. A frame is a uint32 length followed by that many bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/roostchat/roost/pkg/message"
)

const (
	// MaxMessageFrame bounds a frame carrying a single message or a join request.
	MaxMessageFrame = 8 << 20
	// MaxBacklogFrame bounds the backlog frame sent during the handshake.
	MaxBacklogFrame = 512 << 20
)

const (
	JoinRejected byte = 0
	JoinAccepted byte = 1
)

// ProtocolError is returned when the peer sends something that violates the framing.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Msg
}

func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func WriteSince(w io.Writer, since message.Timestamp) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(since))
	_, err := w.Write(buf[:])
	return err
}

func ReadSince(r io.Reader) (message.Timestamp, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	since := message.Timestamp(binary.BigEndian.Uint64(buf[:]))
	if since < 0 {
		return 0, &ProtocolError{Msg: fmt.Sprintf("negative since timestamp %d", since)}
	}
	return since, nil
}

// WriteFrame writes the length prefix and data with a single Write call,
// so a frame is never split between concurrent writers that serialize on w.
func WriteFrame(w io.Writer, data []byte) error {
	if uint64(len(data)) > 1<<32-1 {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame. Lengths above max are a ProtocolError.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var lbuf [4]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return nil, err
	}
	l := binary.BigEndian.Uint32(lbuf[:])
	if uint64(l) > uint64(max) {
		return nil, &ProtocolError{Msg: fmt.Sprintf("frame of %d bytes exceeds limit of %d", l, max)}
	}
	data := make([]byte, l)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

func WriteJoinResult(w io.Writer, accepted bool) error {
	b := JoinRejected
	if accepted {
		b = JoinAccepted
	}
	_, err := w.Write([]byte{b})
	return err
}

func ReadJoinResult(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	switch buf[0] {
	case JoinAccepted:
		return true, nil
	case JoinRejected:
		return false, nil
	default:
		return false, &ProtocolError{Msg: fmt.Sprintf("unknown join result %d", buf[0])}
	}
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m message.Message) error {
	data, err := message.Marshal(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// ReadMessage reads one frame and decodes it. Undecodable frames are a ProtocolError.
func ReadMessage(r io.Reader) (message.Message, error) {
	data, err := ReadFrame(r, MaxMessageFrame)
	if err != nil {
		return message.Message{}, err
	}
	m, err := message.Unmarshal(data)
	if err != nil {
		return message.Message{}, &ProtocolError{Msg: err.Error()}
	}
	return m, nil
}
