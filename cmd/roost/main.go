package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roostchat/roost/pkg/roostcmd"
)

func main() {
	ctx, cf := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cf()
	if err := roostcmd.NewRootCmd().ExecuteContext(ctx); err != nil {
		cf()
		os.Exit(1)
	}
}
