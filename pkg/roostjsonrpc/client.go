package roostjsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"runtime"
	"strings"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/roostclient"
)

var _ API = &Client{}

// Client is the UI's end of the bridge.
type Client struct {
	c *jsonrpc2.Conn
}

// NewClient calls the bridge over rwc.
// Notifications are passed to sink and errs in the order the bridge sent them. errs may be nil.
func NewClient(ctx context.Context, rwc io.ReadWriteCloser, sink roostclient.Sink, errs roostclient.ErrorReporter) *Client {
	objStream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.PlainObjectCodec{})
	c := jsonrpc2.NewConn(ctx, objStream, notifyHandler{sink: sink, errs: errs})
	return &Client{c: c}
}

func (c *Client) Close() error {
	return c.c.Close()
}

// Send sends a message as the bridge's user.
func (c *Client) Send(ctx context.Context, req *SendReq) error {
	var res struct{}
	return c.c.Call(ctx, currentMethodName(), req, &res)
}

// History returns the bridge's local cache.
func (c *Client) History(ctx context.Context) ([]message.Message, error) {
	var res []message.Message
	if err := c.c.Call(ctx, currentMethodName(), nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

type notifyHandler struct {
	sink roostclient.Sink
	errs roostclient.ErrorReporter
}

func (h notifyHandler) Handle(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) {
	if !r.Notif || r.Params == nil {
		return
	}
	switch r.Method {
	case MethodOnMessage:
		var m message.Message
		if err := json.Unmarshal(*r.Params, &m); err != nil {
			logctx.Errorf(ctx, "bad %s notification: %v", r.Method, err)
			return
		}
		h.sink.OnMessage(m)
	case MethodOnError:
		var msg string
		if err := json.Unmarshal(*r.Params, &msg); err != nil {
			logctx.Errorf(ctx, "bad %s notification: %v", r.Method, err)
			return
		}
		if h.errs != nil {
			h.errs.ReportError(errors.New(msg))
		}
	}
}

func currentMethodName() string {
	fpcs := make([]uintptr, 1)
	n := runtime.Callers(2, fpcs)
	if n == 0 {
		return ""
	}
	caller := runtime.FuncForPC(fpcs[0] - 1)
	if caller == nil {
		return ""
	}
	parts := strings.Split(caller.Name(), ".")
	return parts[len(parts)-1]
}
