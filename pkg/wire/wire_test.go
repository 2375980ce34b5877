package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roostchat/roost/pkg/message"
)

func TestSince(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSince(&buf, 1700000000123))
	require.Equal(t, 8, buf.Len())
	since, err := ReadSince(&buf)
	require.NoError(t, err)
	require.Equal(t, message.Timestamp(1700000000123), since)

	buf.Reset()
	require.NoError(t, WriteSince(&buf, -1))
	_, err = ReadSince(&buf)
	require.True(t, IsProtocolError(err))
}

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	require.NoError(t, WriteFrame(&buf, nil))
	require.Equal(t, []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}, buf.Bytes())

	data, err := ReadFrame(&buf, MaxMessageFrame)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
	data, err = ReadFrame(&buf, MaxMessageFrame)
	require.NoError(t, err)
	require.Len(t, data, 0)
	_, err = ReadFrame(&buf, MaxMessageFrame)
	require.ErrorIs(t, err, io.EOF)
}

func TestFrameLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 10)))
	_, err := ReadFrame(&buf, 9)
	require.True(t, IsProtocolError(err))
}

func TestTruncatedFrame(t *testing.T) {
	r := bytes.NewReader([]byte{0, 0, 0, 5, 'h', 'i'})
	_, err := ReadFrame(r, MaxMessageFrame)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestJoinResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJoinResult(&buf, true))
	require.NoError(t, WriteJoinResult(&buf, false))
	buf.WriteByte(7)

	ok, err := ReadJoinResult(&buf)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ReadJoinResult(&buf)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = ReadJoinResult(&buf)
	require.True(t, IsProtocolError(err))
}

func TestMessage(t *testing.T) {
	var buf bytes.Buffer
	m := message.NewText("alice", 1000, "hi")
	require.NoError(t, WriteMessage(&buf, m))
	out, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.True(t, m.Equal(out))

	require.NoError(t, WriteFrame(&buf, []byte{0xff, 0xff}))
	_, err = ReadMessage(&buf)
	require.True(t, IsProtocolError(err))
}
