package roostjsonrpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/roostchat/roost/pkg/dbutil"
	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/msgstore"
	"github.com/roostchat/roost/pkg/roostclient"
)

var ctx = logctx.WithFmtLogger(context.Background(), logrus.StandardLogger())

func TestSendAndHistory(t *testing.T) {
	cache, err := msgstore.New(ctx, dbutil.NewTestDB(t))
	require.NoError(t, err)
	old := message.NewImage("bob", 500, []byte{1, 2, 3})
	require.NoError(t, cache.Append(ctx, old))
	sender := &fakeSender{}
	svc := NewService(sender, cache, "alice")
	svc.now = func() message.Timestamp { return 1000 }
	client, _ := setup(t, svc, nil, nil)

	text := "hi"
	require.NoError(t, client.Send(ctx, &SendReq{Text: &text}))
	require.NoError(t, client.Send(ctx, &SendReq{Image: []byte{0xff}}))
	require.Equal(t, []message.Message{
		message.NewText("alice", 1000, "hi"),
		message.NewImage("alice", 1000, []byte{0xff}),
	}, sender.all())

	require.Error(t, client.Send(ctx, &SendReq{}))
	require.Error(t, client.Send(ctx, &SendReq{Text: &text, Image: []byte{1}}))
	require.Len(t, sender.all(), 2)

	hist, err := client.History(ctx)
	require.NoError(t, err)
	require.Equal(t, []message.Message{old}, hist)
}

func TestNotifications(t *testing.T) {
	msgs := make(chan message.Message, 4)
	errs := make(chan error, 4)
	sink := roostclient.SinkFunc(func(m message.Message) { msgs <- m })
	_, peer := setup(t, NewService(&fakeSender{}, nil, "alice"), sink, errReporter(func(err error) { errs <- err }))

	m1 := message.NewText("bob", 1, "first")
	m2 := message.NewImage("bob", 2, []byte("second"))
	peer.OnMessage(m1)
	peer.OnMessage(m2)
	peer.ReportError(errors.New("connection lost"))

	require.Equal(t, m1, recv(t, msgs))
	require.Equal(t, m2, recv(t, msgs))
	select {
	case err := <-errs:
		require.EqualError(t, err, "connection lost")
	case <-time.After(5 * time.Second):
		t.Fatal("no error notification")
	}
}

func TestCallUnknownMethod(t *testing.T) {
	svc := NewService(&fakeSender{}, nil, "alice")
	_, err := Call(ctx, svc, "Delete", nil)
	require.Error(t, err)
}

func setup(t testing.TB, api API, sink roostclient.Sink, errs roostclient.ErrorReporter) (*Client, *Peer) {
	a, b := net.Pipe()
	peer := NewPeer(b)
	peer.Serve(ctx, api)
	if sink == nil {
		sink = roostclient.SinkFunc(func(message.Message) {})
	}
	client := NewClient(ctx, a, sink, errs)
	t.Cleanup(func() {
		client.Close()
		peer.Close()
	})
	return client, peer
}

func recv(t testing.TB, ch <-chan message.Message) message.Message {
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no message notification")
		return message.Message{}
	}
}

type errReporter func(error)

func (f errReporter) ReportError(err error) { f(err) }

type fakeSender struct {
	mu   sync.Mutex
	sent []message.Message
}

func (s *fakeSender) Send(ctx context.Context, m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSender) all() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message{}, s.sent...)
}
