package roostcmd

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/brendoncarroll/stdctx/logctx"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roostchat/roost/pkg/relay"
)

func newServeCmd(a *app, defaults Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Args:  cobra.NoArgs,
	}
	addr := cmd.Flags().String("addr", defaults.ServerAddr(), "address to accept clients on")
	adminAddr := cmd.Flags().String("admin-addr", defaults.AdminAddr, "address of the admin HTTP API, empty to disable")
	workers := cmd.Flags().Int("workers", defaults.Workers, "maximum number of connections served at once")
	handshakeTimeout := cmd.Flags().Duration("handshake-timeout", defaults.HandshakeTimeout, "deadline for a client to complete the handshake")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := a.ctx
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		hub := relay.NewHub(relay.HubParams{
			Log:              store,
			Metrics:          relay.NewMetrics(reg),
			Logger:           a.logger,
			HandshakeTimeout: *handshakeTimeout,
		})
		l, err := net.Listen("tcp", *addr)
		if err != nil {
			return err
		}

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			return hub.Run(ctx)
		})
		eg.Go(func() error {
			return relay.NewServer(hub, *workers).Serve(ctx, l)
		})
		if *adminAddr != "" {
			gin.SetMode(gin.ReleaseMode)
			srv := relay.NewAdminServer(*adminAddr, relay.NewAdminRouter(hub, reg, a.logger))
			eg.Go(func() error {
				logctx.Infof(ctx, "admin API on %s", *adminAddr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				return srv.Shutdown(context.WithoutCancel(ctx))
			})
		}
		err = eg.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return cmd
}
