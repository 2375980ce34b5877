package roostcmd

import (
	"github.com/spf13/cobra"

	"github.com/roostchat/roost/pkg/roostjsonrpc"
)

func newBridgeCmd(a *app, defaults Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Connect to a server and serve JSON-RPC to a UI over stdin and stdout",
		Args:  cobra.NoArgs,
	}
	cf := addClientFlags(cmd, defaults)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := a.ctx
		peer := roostjsonrpc.NewPeer(stdio(cmd))
		e, store, err := a.connect(cf, peer, peer)
		if err != nil {
			return err
		}
		defer store.Close()
		defer e.Close()
		peer.Serve(ctx, roostjsonrpc.NewService(e, store, *cf.username))
		defer peer.Close()
		if err := e.Start(ctx); err != nil {
			return err
		}
		done := make(chan error, 1)
		go func() { done <- e.Wait() }()
		select {
		case <-peer.DisconnectNotify():
			return nil
		case err := <-done:
			return err
		}
	}
	return cmd
}
