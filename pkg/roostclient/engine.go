package roostclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/google/btree"

	"github.com/roostchat/roost/pkg/message"
)

// Conn is a connection to the server, as used by Engine. *Remote implements it.
type Conn interface {
	Backlog(ctx context.Context, since message.Timestamp) ([]message.Message, error)
	Join(ctx context.Context, username string) error
	Receive() (message.Message, error)
	Send(ctx context.Context, m message.Message) error
	Close() error
}

var _ Conn = &Remote{}

// LocalCache is the client's durable copy of the conversation.
type LocalCache interface {
	All(ctx context.Context) ([]message.Message, error)
	Append(ctx context.Context, m message.Message) error
}

// Sink receives messages for presentation. OnMessage is never called concurrently with itself.
type Sink interface {
	OnMessage(m message.Message)
}

type SinkFunc func(m message.Message)

func (f SinkFunc) OnMessage(m message.Message) {
	f(m)
}

// ErrorReporter is told about failures which do not stop the engine.
type ErrorReporter interface {
	ReportError(err error)
}

type Params struct {
	Cache    LocalCache
	Conn     Conn
	Username string
	Sink     Sink
	// Errors is optional. Without it failures are only logged.
	Errors ErrorReporter
}

// Engine merges the local cache with the server's backlog, then follows the live stream.
// An Engine serves a single connection. Reconnecting means creating a new Engine.
type Engine struct {
	cache    LocalCache
	conn     Conn
	username string
	sink     Sink
	errs     ErrorReporter

	started atomic.Bool
	joined  atomic.Bool
	closing atomic.Bool
	done    chan struct{}
	err     error

	closeOnce sync.Once
}

func NewEngine(params Params) *Engine {
	return &Engine{
		cache:    params.Cache,
		conn:     params.Conn,
		username: params.Username,
		sink:     params.Sink,
		errs:     params.Errors,
		done:     make(chan struct{}),
	}
}

// Start delivers the merged history to the sink in timestamp order, joins as the engine's username,
// and then starts delivering live messages.
// If the username is taken, Start returns ErrUsernameTaken and nothing more is delivered.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	started := false
	defer func() {
		if !started {
			close(e.done)
		}
	}()

	local, err := e.cache.All(ctx)
	if err != nil {
		return fmt.Errorf("loading local cache: %w", err)
	}
	view := btree.NewG(2, message.Less)
	for _, m := range local {
		if !view.Has(m) {
			view.ReplaceOrInsert(m)
		}
	}
	since := message.Epoch
	if last, ok := view.Max(); ok {
		since = last.Timestamp
	}
	backlog, err := e.conn.Backlog(ctx, since)
	if err != nil {
		return err
	}
	var added int
	for _, m := range backlog {
		// a timestamp already in the view is the same record
		if view.Has(m) {
			continue
		}
		view.ReplaceOrInsert(m)
		added++
		if err := e.cache.Append(ctx, m); err != nil {
			e.report(ctx, fmt.Errorf("caching backlog message: %w", err))
		}
	}
	logctx.Infof(ctx, "history: local=%d backlog=%d new=%d since=%d", len(local), len(backlog), added, since)
	view.Ascend(func(m message.Message) bool {
		e.sink.OnMessage(m)
		return true
	})

	if err := e.conn.Join(ctx, e.username); err != nil {
		return err
	}
	e.joined.Store(true)
	started = true
	go e.listen(context.WithoutCancel(ctx))
	return nil
}

// Send caches m locally and then transmits it. It does not retry.
func (e *Engine) Send(ctx context.Context, m message.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if !e.joined.Load() {
		return ErrNotJoined
	}
	if err := e.cache.Append(ctx, m); err != nil {
		return fmt.Errorf("caching sent message: %w", err)
	}
	return e.conn.Send(ctx, m)
}

// Wait blocks until the live listener stops, and returns the reason.
// It returns nil if the engine was closed.
func (e *Engine) Wait() error {
	<-e.done
	return e.err
}

// Close closes the connection and waits for the listener.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		err = e.conn.Close()
	})
	if e.started.Load() {
		<-e.done
	}
	return err
}

func (e *Engine) listen(ctx context.Context) {
	defer close(e.done)
	for {
		m, err := e.conn.Receive()
		if err != nil {
			if !e.closing.Load() {
				e.err = err
				e.report(ctx, err)
			}
			return
		}
		if err := e.cache.Append(ctx, m); err != nil {
			e.report(ctx, fmt.Errorf("caching received message: %w", err))
		}
		e.sink.OnMessage(m)
	}
}

func (e *Engine) report(ctx context.Context, err error) {
	logctx.Errorf(ctx, "%v", err)
	if e.errs != nil {
		e.errs.ReportError(err)
	}
}
