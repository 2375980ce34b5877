package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/wire"
)

// ServeConn runs the protocol for one client connection until it disconnects or ctx is done.
// conn is always closed when ServeConn returns.
func (h *Hub) ServeConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	h.metrics.Connections.Inc()
	logger := h.logger.WithField("conn", uuid.NewString()).WithField("remote", conn.RemoteAddr().String())
	ctx = logctx.WithFmtLogger(ctx, logger)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if h.handshakeTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(h.handshakeTimeout)); err != nil {
			return err
		}
	}
	since, sent, err := h.sendBacklog(ctx, conn)
	if err != nil {
		logctx.Warnf(ctx, "backlog handshake: %v", err)
		return err
	}
	data, err := wire.ReadFrame(conn, wire.MaxMessageFrame)
	if err != nil {
		logctx.Warnf(ctx, "reading join: %v", err)
		return err
	}
	username, err := message.UnmarshalJoin(data)
	if err != nil {
		err = &wire.ProtocolError{Msg: fmt.Sprintf("join request: %v", err)}
		logctx.Warnf(ctx, "%v", err)
		return err
	}

	s := newSession(username, conn.Close)
	if err := h.Register(ctx, username, s, since, sent); err != nil {
		logctx.Infof(ctx, "rejecting join of %q: %v", username, err)
		if err2 := wire.WriteJoinResult(conn, false); err2 != nil {
			return err2
		}
		return err
	}
	defer h.Unregister(ctx, username, s)
	defer s.close()
	if err := wire.WriteJoinResult(conn, true); err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return err
	}
	ctx = logctx.WithFmtLogger(ctx, logger.WithField("user", username))
	logctx.Infof(ctx, "joined since=%d backlog=%d", since, len(sent))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer s.close()
		return s.writeLoop(ctx, conn)
	})
	eg.Go(func() error {
		defer s.close()
		return h.readLoop(ctx, username, conn)
	})
	err = eg.Wait()
	if isDisconnect(err) {
		logctx.Infof(ctx, "disconnected")
		return nil
	}
	logctx.Errorf(ctx, "connection failed: %v", err)
	return err
}

// sendBacklog answers the client's cursor with every message persisted after it.
func (h *Hub) sendBacklog(ctx context.Context, conn net.Conn) (message.Timestamp, []message.Message, error) {
	since, err := wire.ReadSince(conn)
	if err != nil {
		return 0, nil, err
	}
	ms, err := h.Backlog(ctx, since)
	if err != nil {
		return 0, nil, err
	}
	data, err := message.MarshalBacklog(ms)
	if err != nil {
		return 0, nil, err
	}
	if err := wire.WriteFrame(conn, data); err != nil {
		return 0, nil, err
	}
	return since, ms, nil
}

func (h *Hub) readLoop(ctx context.Context, username string, r io.Reader) error {
	for {
		data, err := wire.ReadFrame(r, wire.MaxMessageFrame)
		if err != nil {
			return err
		}
		if err := h.Relay(ctx, username, data); err != nil {
			return err
		}
	}
}

// isDisconnect reports whether err is an ordinary end of a connection.
func isDisconnect(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, context.Canceled)
}
