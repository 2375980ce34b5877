package relay

import (
	"context"
	"io"
	"sync"

	"github.com/roostchat/roost/pkg/wire"
)

// session is the outbound side of a joined connection.
// After the join is acknowledged, writeLoop is the only writer to the connection.
type session struct {
	username string
	out      chan []byte

	done      chan struct{}
	closeOnce sync.Once
	closeConn func() error
}

func newSession(username string, closeConn func() error) *session {
	return &session{
		username:  username,
		done:      make(chan struct{}),
		closeConn: closeConn,
	}
}

// offer queues a frame without blocking. It returns false if the session is closed or its queue is full.
func (s *session) offer(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- data:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeConn()
	})
}

func (s *session) writeLoop(ctx context.Context, w io.Writer) error {
	for {
		select {
		case data := <-s.out:
			if err := wire.WriteFrame(w, data); err != nil {
				return err
			}
		case <-s.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
