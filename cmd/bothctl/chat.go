package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/GraysonCAdams/bothbubbles-gateway/pkg/imessage"
)

var newChatCommand = &cli.Command{
	Name:      "new-chat",
	Usage:     "Create (or find) a chat with one or more recipients",
	ArgsUsage: "<address> [address...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "Display name for a group chat",
		},
	},
	Before: prepareApp,
	After:  teardownApp,
	Action: runNewChat,
}

func runNewChat(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("usage: bothctl new-chat <address> [address...]")
	}
	gw := getGateway(ctx)
	waitForConnection(gw, 2*time.Second)

	session := gw.NewChatSession()
	defer session.Close()
	if err := session.LoadParticipants(ctx.Args().Slice()); err != nil {
		return err
	}
	recipients := session.ResolveServices(ctx.Context)

	guid, err := gw.CreateChat(ctx.Context, recipients, ctx.String("name"))
	if err != nil {
		return err
	}
	fmt.Println(guid)
	return nil
}

var chatsCommand = &cli.Command{
	Name:  "chats",
	Usage: "List locally cached chats by most recent activity",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of chats to show",
			Value: 20,
		},
	},
	Before: prepareApp,
	After:  teardownApp,
	Action: runChats,
}

func runChats(ctx *cli.Context) error {
	gw := getGateway(ctx)
	chats, err := gw.Store.RecentChats(ctx.Context, ctx.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}
	if len(chats) == 0 {
		fmt.Println("No cached chats. Run 'bothctl sync' first.")
		return nil
	}
	for _, chat := range chats {
		name := chat.DisplayName
		if name == "" {
			name = chat.Identifier
		}
		activity := "no messages"
		if chat.LastMessageTS > 0 {
			activity = time.UnixMilli(chat.LastMessageTS).Format("2006-01-02 15:04")
		}
		fmt.Printf("%-10s %-40s %s\n", chat.Service, name, activity)
	}
	return nil
}

var renameCommand = &cli.Command{
	Name:      "rename",
	Usage:     "Set a chat's display name locally and on the server",
	ArgsUsage: "<chat-guid> <name>",
	Before:    prepareApp,
	After:     teardownApp,
	Action:    runRename,
}

func runRename(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("usage: bothctl rename <chat-guid> <name>")
	}
	guid, name := ctx.Args().Get(0), ctx.Args().Get(1)
	gw := getGateway(ctx)

	if err := gw.Store.SetDisplayName(ctx.Context, guid, name); err != nil {
		return fmt.Errorf("failed to rename chat locally: %w", err)
	}
	if !imessage.IsGroupGUID(guid) {
		fmt.Println("Renamed locally (server names only apply to groups)")
		return nil
	}
	if _, err := gw.Client.UpdateChat(ctx.Context, guid, name); err != nil {
		return fmt.Errorf("renamed locally, but server update failed: %w", err)
	}
	fmt.Println("Renamed")
	return nil
}

var sendCommand = &cli.Command{
	Name:      "send",
	Usage:     "Send a text message to a chat",
	ArgsUsage: "<chat-guid> <text>",
	Before:    prepareApp,
	After:     teardownApp,
	Action:    runSend,
}

func runSend(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("usage: bothctl send <chat-guid> <text>")
	}
	gw := getGateway(ctx)
	msg, err := gw.SendText(ctx.Context, ctx.Args().Get(0), ctx.Args().Get(1))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	fmt.Printf("Sent %s\n", msg.GUID)
	return nil
}
