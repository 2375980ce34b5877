package roostjsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/roostclient"
)

const (
	MethodOnMessage = "OnMessage"
	MethodOnError   = "OnError"
)

// ServeRWC serves requests over an io.ReadWriteCloser rwc, using api, until rwc is closed.
func ServeRWC(ctx context.Context, rwc io.ReadWriteCloser, api API) error {
	p := NewPeer(rwc)
	p.Serve(ctx, api)
	defer p.Close()
	<-p.DisconnectNotify()
	return nil
}

var (
	_ roostclient.Sink          = &Peer{}
	_ roostclient.ErrorReporter = &Peer{}
)

// Peer is the bridge's end of a JSON-RPC connection to a UI.
// It forwards delivered messages and errors to the UI as notifications.
type Peer struct {
	rwc io.ReadWriteCloser

	mu  sync.Mutex
	ctx context.Context
	c   *jsonrpc2.Conn
}

func NewPeer(rwc io.ReadWriteCloser) *Peer {
	return &Peer{rwc: rwc}
}

// Serve starts answering requests with api. It does not block.
func (p *Peer) Serve(ctx context.Context, api API) {
	objStream := jsonrpc2.NewBufferedStream(p.rwc, jsonrpc2.PlainObjectCodec{})
	c := jsonrpc2.NewConn(ctx, objStream, jsonrpc2.AsyncHandler(handler{api: api}))
	p.mu.Lock()
	p.ctx, p.c = ctx, c
	p.mu.Unlock()
}

// DisconnectNotify is closed when the UI goes away. Serve must have been called.
func (p *Peer) DisconnectNotify() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.DisconnectNotify()
}

func (p *Peer) OnMessage(m message.Message) {
	p.notify(MethodOnMessage, m)
}

func (p *Peer) ReportError(err error) {
	p.notify(MethodOnError, err.Error())
}

func (p *Peer) Close() error {
	p.mu.Lock()
	c := p.c
	p.mu.Unlock()
	if c == nil {
		return p.rwc.Close()
	}
	return c.Close()
}

func (p *Peer) notify(method string, params interface{}) {
	p.mu.Lock()
	ctx, c := p.ctx, p.c
	p.mu.Unlock()
	if c == nil {
		return
	}
	if err := c.Notify(ctx, method, params); err != nil {
		logctx.Errorf(ctx, "while notifying %s: %v", method, err)
	}
}

type handler struct {
	api API
}

func (h handler) Handle(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) {
	if r.Notif {
		return
	}
	var params json.RawMessage
	if r.Params != nil {
		params = *r.Params
	}
	y, err := Call(ctx, h.api, r.Method, params)
	if err != nil {
		if err := c.ReplyWithError(ctx, r.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInternalError,
			Message: err.Error(),
		}); err != nil {
			logctx.Errorf(ctx, "while replying with error: %v", err)
		}
		return
	}
	if err := c.Reply(ctx, r.ID, y); err != nil {
		logctx.Errorf(ctx, "while replying: %v", err)
	}
}

// Call looks for a method on target, and then unmarshals reqData into its input.
//
// Valid method signatures:
// - (a *A) func(ctx context.Context) error
// - (a *A) func(ctx context.Context, req *X) error
// - (a *A) func(ctx context.Context) (Y, error)
// - (a *A) func(ctx context.Context, req *X) (Y, error)
func Call(ctx context.Context, target interface{}, method string, reqData json.RawMessage) (interface{}, error) {
	ty := reflect.TypeOf(target)
	m, found := ty.MethodByName(method)
	if !found {
		return nil, fmt.Errorf("no method: %q", method)
	}
	if numIn := m.Type.NumIn(); numIn > 3 {
		return nil, fmt.Errorf("method %q has too many arguments", method)
	} else if numIn == 3 && m.Type.In(2).Kind() != reflect.Pointer {
		return nil, errors.New("input 2 must be pointer")
	}
	var req reflect.Value
	if m.Type.NumIn() > 2 {
		req = reflect.New(m.Type.In(2).Elem())
		if err := json.Unmarshal(reqData, req.Interface()); err != nil {
			return nil, err
		}
	}
	if numOut := m.Type.NumOut(); numOut > 2 || numOut == 0 {
		return nil, errors.New("must have 1 or 2 outputs")
	}

	args := []reflect.Value{reflect.ValueOf(target), reflect.ValueOf(ctx)}
	if m.Type.NumIn() > 2 {
		args = append(args, req)
	}
	outs := m.Func.Call(args)
	if len(outs) == 1 {
		return struct{}{}, errorFromAny(outs[0].Interface())
	}
	return outs[0].Interface(), errorFromAny(outs[1].Interface())
}

func errorFromAny(x any) error {
	if x == nil {
		return nil
	}
	return x.(error)
}
