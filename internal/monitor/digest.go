package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"unbanbot/internal/registry"
	kit "unbanbot/internal/transport"
	logx "unbanbot/pkg/logx"
)

// Digest sends one aggregated summary per chat that has at least one
// monitoring item. Chats with nothing tracked get nothing. The digest never
// mutates the registry.
type Digest struct {
	reg   *registry.Registry
	notif Notifier
	log   logx.Logger

	now func() time.Time
}

func NewDigest(reg *registry.Registry, notif Notifier, log logx.Logger) *Digest {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Digest{reg: reg, notif: notif, log: log, now: time.Now}
}

func (d *Digest) Run(ctx context.Context) error {
	items := d.reg.Monitoring()
	if len(items) == 0 {
		return nil
	}

	now := d.now().UTC()
	byChat := map[int64][]registry.Item{}
	for _, it := range items {
		byChat[it.ChatID] = append(byChat[it.ChatID], it)
	}

	chatIDs := make([]int64, 0, len(byChat))
	for id := range byChat {
		chatIDs = append(chatIDs, id)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })

	sent := 0
	for _, chatID := range chatIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		text := buildDigestText(byChat[chatID], now)
		err := d.notif.Notify(ctx, kit.Notification{
			Target:  kit.ChatTarget{ChatID: chatID},
			Text:    text,
			Options: &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true},
		})
		if err != nil {
			// One chat's failure must not starve the others of their digest.
			d.log.Warn("digest send failed", logx.Int64("chat_id", chatID), logx.Err(err))
			continue
		}
		sent++
	}

	d.log.Info("daily digest done", logx.Int("chats", sent), logx.Int("items", len(items)))
	return nil
}

func buildDigestText(items []registry.Item, now time.Time) string {
	var b strings.Builder
	b.WriteString("📊 *Daily Monitoring Summary:*\n")
	for _, it := range items {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("🔍 @%s — monitoring for %s", it.Username, FormatDuration(now.Sub(it.StartTime))))
	}
	return b.String()
}
