package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/roostchat/roost/pkg/message"
)

var ErrUsernameTaken = errors.New("username is already taken")

// Log is the durable message log behind the hub.
type Log interface {
	Append(ctx context.Context, m message.Message) error
	Since(ctx context.Context, since message.Timestamp) ([]message.Message, error)
}

type HubParams struct {
	Log     Log
	Metrics *Metrics
	Logger  logrus.FieldLogger

	// RelayQueue is the capacity of the relay channel shared by all connections.
	RelayQueue int
	// OutboundQueue is the capacity of each session's outbound queue.
	OutboundQueue int
	// HandshakeTimeout bounds the handshake of a connection. Zero means no deadline.
	HandshakeTimeout time.Duration
}

// Hub owns the session registry and the relay channel.
// Every inbound message from every connection is persisted and fanned out by Run, one at a time.
type Hub struct {
	log              Log
	metrics          *Metrics
	logger           logrus.FieldLogger
	outboundQueue    int
	handshakeTimeout time.Duration

	relay chan inbound

	// relayMu is held while one message is persisted and fanned out, and while a session joins.
	relayMu sync.Mutex
	// mu guards sessions.
	mu       sync.Mutex
	sessions map[string]*session
}

type inbound struct {
	from string
	data []byte
}

func NewHub(params HubParams) *Hub {
	if params.Metrics == nil {
		params.Metrics = NewMetrics(nil)
	}
	if params.Logger == nil {
		params.Logger = logrus.StandardLogger()
	}
	if params.RelayQueue <= 0 {
		params.RelayQueue = 1024
	}
	if params.OutboundQueue <= 0 {
		params.OutboundQueue = 256
	}
	return &Hub{
		log:              params.Log,
		metrics:          params.Metrics,
		logger:           params.Logger,
		outboundQueue:    params.OutboundQueue,
		handshakeTimeout: params.HandshakeTimeout,

		relay:    make(chan inbound, params.RelayQueue),
		sessions: make(map[string]*session),
	}
}

// Run consumes the relay channel until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case in := <-h.relay:
			h.handle(ctx, in)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Relay hands one frame received from the session of from to the hub.
func (h *Hub) Relay(ctx context.Context, from string, data []byte) error {
	select {
	case h.relay <- inbound{from: from, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backlog returns the messages persisted after since.
func (h *Hub) Backlog(ctx context.Context, since message.Timestamp) ([]message.Message, error) {
	ms, err := h.log.Since(ctx, since)
	if err != nil {
		h.metrics.StorageFailures.WithLabelValues("since").Inc()
		return nil, err
	}
	return ms, nil
}

// Register adds s under username, or returns ErrUsernameTaken and leaves the registry unchanged.
//
// since and sent are the cursor and the backlog the connection was answered with.
// Messages persisted after that backlog was read, and before s becomes visible to fan-out,
// are queued on s so nothing falls between the backlog and the live stream.
func (h *Hub) Register(ctx context.Context, username string, s *session, since message.Timestamp, sent []message.Message) error {
	h.relayMu.Lock()
	defer h.relayMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sessions[username]; exists {
		h.metrics.JoinsRejected.Inc()
		return ErrUsernameTaken
	}
	gap := h.missedSince(ctx, username, since, sent)
	s.out = make(chan []byte, len(gap)+h.outboundQueue)
	for _, data := range gap {
		s.out <- data
	}
	h.sessions[username] = s
	h.metrics.Sessions.Inc()
	return nil
}

func (h *Hub) missedSince(ctx context.Context, username string, since message.Timestamp, sent []message.Message) [][]byte {
	ms, err := h.log.Since(ctx, since)
	if err != nil {
		h.metrics.StorageFailures.WithLabelValues("since").Inc()
		logctx.Errorf(ctx, "checking for messages missed by %q, joining without them: %v", username, err)
		return nil
	}
	if len(ms) == len(sent) {
		return nil
	}
	seen := make(map[message.Timestamp]struct{}, len(sent))
	for _, m := range sent {
		seen[m.Timestamp] = struct{}{}
	}
	var ret [][]byte
	for _, m := range ms {
		if _, exists := seen[m.Timestamp]; exists || m.Author == username {
			continue
		}
		data, err := message.Marshal(m)
		if err != nil {
			logctx.Errorf(ctx, "encoding stored message %v: %v", m, err)
			continue
		}
		ret = append(ret, data)
	}
	return ret
}

// Unregister removes username if it is still held by s. It is safe to call more than once.
func (h *Hub) Unregister(ctx context.Context, username string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, exists := h.sessions[username]; exists && cur == s {
		delete(h.sessions, username)
		h.metrics.Sessions.Dec()
	}
}

// Sessions returns the joined usernames in sorted order.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	names := maps.Keys(h.sessions)
	h.mu.Unlock()
	slices.Sort(names)
	return names
}

func (h *Hub) handle(ctx context.Context, in inbound) {
	m, err := message.Unmarshal(in.data)
	if err != nil {
		h.metrics.Malformed.Inc()
		logctx.Warnf(ctx, "dropping undecodable message from %q: %v", in.from, err)
		return
	}
	if m.Author != in.from {
		logctx.Warnf(ctx, "session %q relayed a message authored by %q", in.from, m.Author)
	}

	h.relayMu.Lock()
	defer h.relayMu.Unlock()
	if err := h.log.Append(ctx, m); err != nil {
		// still deliver to the connected sessions
		h.metrics.StorageFailures.WithLabelValues("append").Inc()
		logctx.Errorf(ctx, "persisting message from %q: %v", m.Author, err)
	}
	h.metrics.Relayed.Inc()
	h.broadcast(ctx, m.Author, in.data)
}

// broadcast offers data to every session except author's.
func (h *Hub) broadcast(ctx context.Context, author string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, s := range h.sessions {
		if name == author {
			continue
		}
		if !s.offer(data) {
			h.metrics.DeliveryFailures.Inc()
			logctx.Warnf(ctx, "could not deliver to %q, closing its session", name)
			s.close()
		}
	}
}
