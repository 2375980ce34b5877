package roostcmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roostchat/roost/pkg/msgstore"
	"github.com/roostchat/roost/pkg/roostclient"
)

type clientFlags struct {
	server   *string
	username *string
}

func addClientFlags(cmd *cobra.Command, defaults Env) clientFlags {
	return clientFlags{
		server:   cmd.Flags().String("server", defaults.ServerAddr(), "address of the relay server"),
		username: cmd.Flags().String("username", defaults.Username, "name to join as"),
	}
}

// connect opens the local cache and dials the server. The engine is not started.
func (a *app) connect(cf clientFlags, sink roostclient.Sink, errs roostclient.ErrorReporter) (*roostclient.Engine, *msgstore.Store, error) {
	if *cf.username == "" {
		return nil, nil, errors.New("--username is required")
	}
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	remote, err := roostclient.Dial(a.ctx, *cf.server)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	e := roostclient.NewEngine(roostclient.Params{
		Cache:    store,
		Conn:     remote,
		Username: *cf.username,
		Sink:     sink,
		Errors:   errs,
	})
	return e, store, nil
}
