package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/learnkeeper/internal/client/cli"
	"github.com/dmitrijs2005/learnkeeper/internal/client/client"
	"github.com/dmitrijs2005/learnkeeper/internal/client/config"
)

func main() {

	cfg := config.LoadConfig()

	api, err := client.NewGRPCClient(cfg.ServerEndpointAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer api.Close()

	app := cli.NewApp(cfg, api, os.Stdin, os.Stdout)

	if err := app.Run(context.Background(), cli.CommandArgs(os.Args[1:])); err != nil {
		if !errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
