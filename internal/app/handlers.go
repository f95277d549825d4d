package app

import (
	"context"
	"strings"
	"time"

	kit "unbanbot/internal/transport"
)

const welcomeText = "👋 Welcome! Send me *Instagram usernames* (one or more, space or line-separated) to monitor for unbanning.\n" +
	"Use /status to check what you're monitoring.\n" +
	"Use /remove <username> to stop monitoring a username."

func (a *App) registerCommands() {
	a.cmdm.Register(
		Command{
			Name:        "start",
			Description: "welcome and usage",
			Usage:       "/start",
			Handle: func(ctx context.Context, req *Request) error {
				_, err := req.Adapter.SendText(ctx, req.Chat, welcomeText, &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true})
				return err
			},
		},
		Command{
			Name:        "status",
			Description: "list usernames you are monitoring",
			Usage:       "/status",
			Handle: func(ctx context.Context, req *Request) error {
				_, err := req.Adapter.SendText(ctx, req.Chat, a.trk.Status(req.Chat.ChatID), nil)
				return err
			},
		},
		Command{
			Name:        "remove",
			Description: "stop monitoring a username",
			Usage:       "/remove <username>",
			Handle: func(ctx context.Context, req *Request) error {
				if len(req.Args) == 0 {
					_, err := req.Adapter.SendText(ctx, req.Chat, "Usage: /remove <username>", nil)
					return err
				}
				_, err := req.Adapter.SendText(ctx, req.Chat, a.trk.Remove(ctx, req.Chat.ChatID, req.Args[0]), nil)
				return err
			},
		},
	)

	// Plain text is the add flow: every whitespace-separated token is treated
	// as a username. The add handler does live existence checks, so it gets a
	// generous timeout.
	a.cmdm.SetFallback(func(ctx context.Context, req *Request) error {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		reply := a.trk.Add(cctx, req.Chat.ChatID, strings.Join(req.Args, " "))
		if reply == "" {
			return nil
		}
		_, err := req.Adapter.SendText(ctx, req.Chat, reply, nil)
		return err
	})
}
