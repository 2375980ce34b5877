package roostclient

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/wire"
)

// Remote is the client side of a connection to a roost server.
// Receive must only be called from one goroutine. Send may be called concurrently with everything.
type Remote struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Remote, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnError{Op: "dial", Err: err}
	}
	return NewRemote(conn), nil
}

func NewRemote(conn net.Conn) *Remote {
	return &Remote{
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

// Backlog sends the cursor since and returns every message the server persisted after it.
func (r *Remote) Backlog(ctx context.Context, since message.Timestamp) ([]message.Message, error) {
	defer r.bindContext(ctx)()
	r.writeMu.Lock()
	err := wire.WriteSince(r.conn, since)
	r.writeMu.Unlock()
	if err != nil {
		return nil, &ConnError{Op: "backlog", Err: err}
	}
	data, err := wire.ReadFrame(r.r, wire.MaxBacklogFrame)
	if err != nil {
		return nil, &ConnError{Op: "backlog", Err: err}
	}
	ms, err := message.UnmarshalBacklog(data)
	if err != nil {
		return nil, &ConnError{Op: "backlog", Err: &wire.ProtocolError{Msg: err.Error()}}
	}
	return ms, nil
}

// Join claims username. It returns ErrUsernameTaken if the server refused, after which the connection is closed.
func (r *Remote) Join(ctx context.Context, username string) error {
	defer r.bindContext(ctx)()
	r.writeMu.Lock()
	err := wire.WriteFrame(r.conn, message.MarshalJoin(username))
	r.writeMu.Unlock()
	if err != nil {
		return &ConnError{Op: "join", Err: err}
	}
	accepted, err := wire.ReadJoinResult(r.r)
	if err != nil {
		return &ConnError{Op: "join", Err: err}
	}
	if !accepted {
		r.conn.Close()
		return ErrUsernameTaken
	}
	return nil
}

// Receive blocks until the server relays a message.
func (r *Remote) Receive() (message.Message, error) {
	m, err := wire.ReadMessage(r.r)
	if err != nil {
		return message.Message{}, &ConnError{Op: "receive", Err: err}
	}
	return m, nil
}

func (r *Remote) Send(ctx context.Context, m message.Message) error {
	data, err := message.Marshal(m)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		r.conn.SetWriteDeadline(dl)
		defer r.conn.SetWriteDeadline(time.Time{})
	}
	if err := wire.WriteFrame(r.conn, data); err != nil {
		return &ConnError{Op: "send", Err: err}
	}
	return nil
}

func (r *Remote) Close() error {
	return r.conn.Close()
}

// bindContext applies the deadline of ctx to the connection, and interrupts blocked IO if ctx is cancelled.
// The returned func undoes both.
func (r *Remote) bindContext(ctx context.Context) func() {
	if dl, ok := ctx.Deadline(); ok {
		r.conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		r.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		r.conn.SetDeadline(time.Time{})
	}
}
