// Package tracker implements the chat-facing operations: add usernames,
// show status, remove. It reads and writes the registry directly and honors
// the same invariants as the background scanner.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"unbanbot/internal/monitor"
	"unbanbot/internal/registry"
	"unbanbot/internal/storage"
	logx "unbanbot/pkg/logx"
)

type Service struct {
	reg   *registry.Registry
	check monitor.Checker
	audit storage.Store // optional
	log   logx.Logger

	now func() time.Time
}

func New(reg *registry.Registry, check monitor.Checker, audit storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{reg: reg, check: check, audit: audit, log: log, now: time.Now}
}

// Add processes a whitespace-separated batch of usernames from one chat and
// returns one reply covering the whole batch. Invalid names are flagged
// per-item and never abort the rest; the registry is saved once at the end.
func (t *Service) Add(ctx context.Context, chatID int64, text string) string {
	tokens := dedupe(strings.Fields(text))
	if len(tokens) == 0 {
		return "Send me one or more usernames to monitor."
	}

	now := t.now().UTC()
	var (
		lines   []string
		pending []registry.Item
		inBatch = map[string]bool{}
	)

	for _, raw := range tokens {
		display := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "@")

		name, err := registry.Normalize(raw)
		if err != nil {
			lines = append(lines, fmt.Sprintf("⚠️ Invalid: @%s", display))
			continue
		}

		// One owner per username, across all chats: a name someone else
		// already tracks is reported as already monitored.
		if _, ok := t.reg.Get(name); ok || inBatch[name] {
			lines = append(lines, fmt.Sprintf("⏳ Already monitoring @%s", name))
			continue
		}

		exists, err := t.check.Check(ctx, name)
		if err != nil {
			t.log.Warn("existence check failed during add", logx.String("username", name), logx.Err(err))
			lines = append(lines, fmt.Sprintf("⚠️ Could not check @%s, try again later.", name))
			continue
		}
		if exists {
			lines = append(lines, fmt.Sprintf("✅ @%s is already active/unbanned.", name))
			continue
		}

		pending = append(pending, registry.Item{
			Username:  name,
			ChatID:    chatID,
			Status:    registry.StatusMonitoring,
			StartTime: now,
		})
		inBatch[name] = true
		lines = append(lines, fmt.Sprintf("🔍 Started monitoring @%s.", name))
	}

	if len(pending) > 0 {
		if err := t.reg.UpsertBatch(pending); err != nil {
			t.log.Error("failed to persist new items", logx.Int("count", len(pending)), logx.Err(err))
			return "⚠️ Something went wrong saving your usernames, please try again."
		}
		if t.audit != nil {
			for _, it := range pending {
				_ = t.audit.AppendAudit(ctx, storage.AuditEntry{
					At: now, ChatID: chatID, Item: it.Username, Action: storage.ActionAdd,
				})
			}
		}
	}

	return strings.Join(lines, "\n")
}

// Status renders the chat's monitoring list with elapsed durations.
func (t *Service) Status(chatID int64) string {
	items := t.reg.ListFor(chatID)
	if len(items) == 0 {
		return "📭 You're not monitoring any usernames."
	}

	now := t.now().UTC()
	lines := []string{"📌 You're currently monitoring:"}
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("• @%s — %s", it.Username, monitor.FormatDuration(now.Sub(it.StartTime))))
	}
	return strings.Join(lines, "\n")
}

// Remove stops monitoring a username, but only for the owning chat. A
// non-owner gets the same reply as for an unknown name.
func (t *Service) Remove(ctx context.Context, chatID int64, raw string) string {
	display := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "@")

	name, err := registry.Normalize(raw)
	if err != nil {
		return fmt.Sprintf("⚠️ You're not monitoring @%s.", display)
	}

	ok, err := t.reg.Remove(name, chatID)
	if err != nil {
		t.log.Error("failed to persist removal", logx.String("username", name), logx.Err(err))
		return "⚠️ Something went wrong, please try again."
	}
	if !ok {
		return fmt.Sprintf("⚠️ You're not monitoring @%s.", name)
	}

	if t.audit != nil {
		_ = t.audit.AppendAudit(ctx, storage.AuditEntry{
			At: t.now().UTC(), ChatID: chatID, Item: name, Action: storage.ActionRemove,
		})
	}
	return fmt.Sprintf("🗑️ Stopped monitoring @%s.", name)
}

func dedupe(tokens []string) []string {
	seen := map[string]bool{}
	out := tokens[:0]
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}
