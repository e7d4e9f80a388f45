package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/bluebubbles"
	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/gateway"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyGateway
)

func getConfig(ctx *cli.Context) *gateway.Config {
	return ctx.Context.Value(contextKeyConfig).(*gateway.Config)
}

func getGateway(ctx *cli.Context) *gateway.Gateway {
	return ctx.Context.Value(contextKeyGateway).(*gateway.Gateway)
}

func prepareApp(ctx *cli.Context) error {
	cfgPath := ctx.String("config")
	cfg, err := gateway.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Env overrides so the password can stay out of the config file.
	if v := os.Getenv("BB_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("BB_SERVER_PASSWORD"); v != "" {
		cfg.Server.Password = v
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(cfg.Level())
	zerolog.SetGlobalLevel(cfg.Level())

	gw, err := gateway.New(cfg, cfgPath, log)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	if err = gw.Start(ctx.Context); err != nil {
		return err
	}

	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	newCtx = context.WithValue(newCtx, contextKeyGateway, gw)
	ctx.Context = newCtx
	return nil
}

func teardownApp(ctx *cli.Context) error {
	if gw, ok := ctx.Context.Value(contextKeyGateway).(*gateway.Gateway); ok {
		gw.Stop()
	}
	return nil
}

// waitForConnection gives the socket monitor a moment to reach the relay so
// single-shot commands can use the live path. Falls through silently — every
// caller degrades to local history when the relay stays unreachable.
func waitForConnection(gw *gateway.Gateway, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if gw.Monitor.State() == bluebubbles.StateConnected {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

var exampleConfigCommand = &cli.Command{
	Name:  "example-config",
	Usage: "Print an example config file",
	Action: func(ctx *cli.Context) error {
		fmt.Print(gateway.ExampleConfig)
		return nil
	},
}

func main() {
	_ = godotenv.Load()
	app := &cli.App{
		Name:    "bothctl",
		Usage:   "Talk to a BlueBubbles relay: resolve services, create and sync chats",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: "config.yaml",
			},
		},
		Commands: []*cli.Command{
			resolveCommand,
			newChatCommand,
			chatsCommand,
			renameCommand,
			sendCommand,
			syncCommand,
			serverInfoCommand,
			exampleConfigCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
