// Package roosttest runs a relay server and sync clients in process, for tests.
package roosttest

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/roostchat/roost/pkg/dbutil"
	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/msgstore"
	"github.com/roostchat/roost/pkg/relay"
	"github.com/roostchat/roost/pkg/roostclient"
)

var ctx = logctx.WithFmtLogger(context.Background(), logrus.StandardLogger())

type Server struct {
	Addr     string
	Hub      *relay.Hub
	Log      *msgstore.Store
	Registry *prometheus.Registry
}

// NewServer starts a relay server on a loopback port. It is stopped when the test ends.
func NewServer(t testing.TB) *Server {
	log, err := msgstore.New(ctx, dbutil.NewTestDB(t))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	hub := relay.NewHub(relay.HubParams{
		Log:              log,
		Metrics:          relay.NewMetrics(reg),
		HandshakeTimeout: 5 * time.Second,
	})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cf := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return hub.Run(ctx) })
	eg.Go(func() error { return relay.NewServer(hub, 8).Serve(ctx, l) })
	t.Cleanup(func() {
		cf()
		eg.Wait()
	})
	return &Server{
		Addr:     l.Addr().String(),
		Hub:      hub,
		Log:      log,
		Registry: reg,
	}
}

// Client is a sync engine with its own local cache, recording everything delivered to it.
type Client struct {
	Username string
	Cache    *msgstore.Store
	Engine   *roostclient.Engine

	mu       sync.Mutex
	received []message.Message
}

// NewCache returns an empty local cache.
func NewCache(t testing.TB) *msgstore.Store {
	s, err := msgstore.New(ctx, dbutil.NewTestDB(t))
	require.NoError(t, err)
	return s
}

// Connect dials addr and starts an engine on cache.
// The returned error is the one from Start, so a refused join can be checked for.
func Connect(t testing.TB, addr, username string, cache *msgstore.Store) (*Client, error) {
	remote, err := roostclient.Dial(ctx, addr)
	require.NoError(t, err)
	c := &Client{Username: username, Cache: cache}
	c.Engine = roostclient.NewEngine(roostclient.Params{
		Cache:    cache,
		Conn:     remote,
		Username: username,
		Sink:     roostclient.SinkFunc(c.onMessage),
	})
	t.Cleanup(func() { c.Engine.Close() })
	if err := c.Engine.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Send sends text as the client's user at timestamp at.
func (c *Client) Send(t testing.TB, at message.Timestamp, text string) message.Message {
	m := message.NewText(c.Username, at, text)
	require.NoError(t, c.Engine.Send(ctx, m))
	return m
}

// WaitFor waits until n messages have been delivered and returns them.
func (c *Client) WaitFor(t testing.TB, n int) []message.Message {
	require.Eventually(t, func() bool {
		return len(c.Received()) >= n
	}, 5*time.Second, time.Millisecond, "%s: waiting for %d messages", c.Username, n)
	return c.Received()
}

func (c *Client) Received() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message.Message{}, c.received...)
}

func (c *Client) onMessage(m message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, m)
}

// WaitJoined waits until the server has registered every name in usernames.
func (s *Server) WaitJoined(t testing.TB, usernames ...string) {
	require.Eventually(t, func() bool {
		joined := s.Hub.Sessions()
		for _, name := range usernames {
			if !slices.Contains(joined, name) {
				return false
			}
		}
		return true
	}, 5*time.Second, time.Millisecond)
}

// WaitLeft waits until the server has unregistered username.
func (s *Server) WaitLeft(t testing.TB, username string) {
	require.Eventually(t, func() bool {
		return !slices.Contains(s.Hub.Sessions(), username)
	}, 5*time.Second, time.Millisecond)
}
