package relay

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/brendoncarroll/stdctx/logctx"
	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 64

// Server accepts connections and serves each one on the hub.
type Server struct {
	hub *Hub
	sem *semaphore.Weighted
}

// NewServer returns a Server which serves at most workers connections at once.
// Connections accepted beyond that wait for a free worker.
func NewServer(hub *Hub, workers int) *Server {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Server{
		hub: hub,
		sem: semaphore.NewWeighted(int64(workers)),
	}
}

// Serve accepts connections from l until ctx is done or l fails.
// It closes l and waits for every connection it started before returning.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cf := context.WithCancel(ctx)
	defer cf()
	defer l.Close()
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	logctx.Infof(ctx, "serving on %v", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				conn.Close()
				return
			}
			defer s.sem.Release(1)
			s.hub.ServeConn(ctx, conn)
		}()
	}
}
