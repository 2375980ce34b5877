package roostjsonrpc

import (
	"context"
	"errors"

	"github.com/roostchat/roost/pkg/message"
	"github.com/roostchat/roost/pkg/roostclient"
)

// API is what a UI can ask of the bridge.
type API interface {
	// Send sends a message authored by the bridge's user.
	Send(ctx context.Context, req *SendReq) error
	// History returns everything in the local cache.
	History(ctx context.Context) ([]message.Message, error)
}

// SendReq holds exactly one of Text or Image.
type SendReq struct {
	Text  *string `json:"text,omitempty"`
	Image []byte  `json:"image,omitempty"`
}

// Sender transmits messages. *roostclient.Engine implements it.
type Sender interface {
	Send(ctx context.Context, m message.Message) error
}

var _ Sender = &roostclient.Engine{}

type History interface {
	All(ctx context.Context) ([]message.Message, error)
}

var _ API = &Service{}

// Service implements API on top of a sync engine and its local cache.
type Service struct {
	sender   Sender
	history  History
	username string
	now      func() message.Timestamp
}

func NewService(sender Sender, history History, username string) *Service {
	return &Service{
		sender:   sender,
		history:  history,
		username: username,
		now:      message.Now,
	}
}

func (s *Service) Send(ctx context.Context, req *SendReq) error {
	var p message.Payload
	switch {
	case req.Text != nil && req.Image != nil:
		return errors.New("send request has both text and image")
	case req.Text != nil:
		p = message.TextPayload(*req.Text)
	case req.Image != nil:
		p = message.ImagePayload(req.Image)
	default:
		return errors.New("send request has neither text nor image")
	}
	return s.sender.Send(ctx, message.Message{
		Author:    s.username,
		Timestamp: s.now(),
		Payload:   p,
	})
}

func (s *Service) History(ctx context.Context) ([]message.Message, error) {
	return s.history.All(ctx)
}
