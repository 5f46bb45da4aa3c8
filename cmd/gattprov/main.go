package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/vitaminmoo/gattprov/internal/cli"
	"github.com/vitaminmoo/gattprov/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var root cli.CLI
	kctx := kong.Parse(&root,
		kong.Name("gattprov"),
		kong.Description("Register a GATT service with N characteristics and report the attribute table."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON),
		config.Vars(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if err := kctx.Run(&root); err != nil {
		stop()
		config.Log.WithError(err).Fatal("gattprov failed")
	}
}
