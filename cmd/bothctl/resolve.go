package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "Resolve the messaging service for an address",
	ArgsUsage: "<address>",
	Before:    prepareApp,
	After:     teardownApp,
	Action:    runResolve,
}

func runResolve(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: bothctl resolve <address>")
	}
	address := ctx.Args().First()
	gw := getGateway(ctx)
	waitForConnection(gw, 2*time.Second)

	service := gw.Resolver.ResolveService(ctx.Context, address)
	normalized := imessage.NormalizeAddress(address)
	fmt.Printf("%s -> %s\n", normalized, service)
	return nil
}

var serverInfoCommand = &cli.Command{
	Name:   "server-info",
	Usage:  "Show the relay server's version and capabilities",
	Before: prepareApp,
	After:  teardownApp,
	Action: func(ctx *cli.Context) error {
		info, err := getGateway(ctx).Client.ServerInfo(ctx.Context)
		if err != nil {
			return fmt.Errorf("failed to reach server: %w", err)
		}
		fmt.Printf("Server URL:     %s\n", getConfig(ctx).Server.URL)
		fmt.Printf("Server version: %s\n", info.ServerVersion)
		fmt.Printf("macOS version:  %s\n", info.OSVersion)
		fmt.Printf("Private API:    %t\n", info.PrivateAPI)
		fmt.Printf("Proxy service:  %s\n", info.ProxyService)
		return nil
	},
}
