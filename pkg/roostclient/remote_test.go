package roostclient

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/wire"
)

func TestRemoteHandshake(t *testing.T) {
	hi := message.NewText("bob", 1000, "hi")
	r, server := newTestRemote(t)
	go func() {
		since, err := wire.ReadSince(server)
		if err != nil || since != 500 {
			server.Close()
			return
		}
		data, _ := message.MarshalBacklog([]message.Message{hi})
		wire.WriteFrame(server, data)
		data, err = wire.ReadFrame(server, wire.MaxMessageFrame)
		if err != nil {
			return
		}
		username, _ := message.UnmarshalJoin(data)
		wire.WriteJoinResult(server, username == "alice")
		m, err := wire.ReadMessage(server)
		if err != nil {
			return
		}
		wire.WriteMessage(server, message.NewText("bob", m.Timestamp+1, "echo "+m.Payload.String()))
	}()

	backlog, err := r.Backlog(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, []message.Message{hi}, backlog)
	require.NoError(t, r.Join(ctx, "alice"))

	require.NoError(t, r.Send(ctx, message.NewText("alice", 2000, "yo")))
	m, err := r.Receive()
	require.NoError(t, err)
	require.Equal(t, message.NewText("bob", 2001, "echo yo"), m)
}

func TestRemoteUsernameTaken(t *testing.T) {
	r, server := newTestRemote(t)
	go func() {
		if _, err := wire.ReadSince(server); err != nil {
			return
		}
		wire.WriteFrame(server, nil)
		if _, err := wire.ReadFrame(server, wire.MaxMessageFrame); err != nil {
			return
		}
		wire.WriteJoinResult(server, false)
	}()

	backlog, err := r.Backlog(ctx, message.Epoch)
	require.NoError(t, err)
	require.Empty(t, backlog)
	require.ErrorIs(t, r.Join(ctx, "alice"), ErrUsernameTaken)
}

func TestRemoteConnError(t *testing.T) {
	r, server := newTestRemote(t)
	server.Close()
	_, err := r.Backlog(ctx, message.Epoch)
	var cerr *ConnError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "backlog", cerr.Op)

	_, err = r.Receive()
	require.ErrorAs(t, err, &cerr)
}

func TestRemoteBadBacklog(t *testing.T) {
	r, server := newTestRemote(t)
	go func() {
		if _, err := wire.ReadSince(server); err != nil {
			return
		}
		wire.WriteFrame(server, []byte{0x0a, 0x03, 0xff, 0xff, 0xff})
	}()
	_, err := r.Backlog(ctx, message.Epoch)
	require.True(t, wire.IsProtocolError(err), "%v", err)
}

func newTestRemote(t testing.TB) (*Remote, net.Conn) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewRemote(client), server
}
