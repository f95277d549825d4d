// Package monitor holds the two background jobs: the transition scanner
// (re-checks tracked usernames and flips them to unbanned) and the daily
// digest (one aggregated summary per chat).
package monitor

import (
	"context"
	"fmt"
	"time"

	"unbanbot/internal/registry"
	"unbanbot/internal/storage"
	kit "unbanbot/internal/transport"
	logx "unbanbot/pkg/logx"
)

// Checker is the remote existence predicate. An error means "unknown"; the
// item stays monitoring and is retried next cycle.
type Checker interface {
	Check(ctx context.Context, username string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Scanner runs one scan cycle over all monitoring items.
//
// Locking rule: the registry snapshot is taken under its lock, all network
// calls happen with no lock held, and transitions are applied in one batch
// save at the end of the cycle.
type Scanner struct {
	reg   *registry.Registry
	check Checker
	notif Notifier
	audit storage.Store // optional
	log   logx.Logger

	now func() time.Time
}

func NewScanner(reg *registry.Registry, check Checker, notif Notifier, audit storage.Store, log logx.Logger) *Scanner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scanner{reg: reg, check: check, notif: notif, audit: audit, log: log, now: time.Now}
}

// RunCycle checks every monitoring item once. Per-item failures never abort
// the cycle; unbanned items are terminal and are not part of the snapshot, so
// they are never re-checked.
func (s *Scanner) RunCycle(ctx context.Context) error {
	items := s.reg.Monitoring()
	if len(items) == 0 {
		return nil
	}

	now := s.now().UTC()
	var flipped []string

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}

		exists, err := s.check.Check(ctx, it.Username)
		if err != nil {
			// Transient check failure: keep monitoring, never surface to the chat.
			s.log.Warn("existence check failed", logx.String("username", it.Username), logx.Err(err))
			continue
		}
		if !exists {
			continue
		}

		elapsed := now.Sub(it.StartTime)
		text := fmt.Sprintf("✅ Instagram account @%s has been UNBANNED!\n⏱️ Time taken: %s",
			it.Username, FormatDuration(elapsed))

		// Delivery failure is logged but never blocks the transition: the flip
		// must be durable or the chat would be re-notified forever.
		if err := s.notif.Notify(ctx, kit.Notification{
			Target: kit.ChatTarget{ChatID: it.ChatID},
			Text:   text,
		}); err != nil {
			s.log.Error("failed to notify unban", logx.String("username", it.Username), logx.Int64("chat_id", it.ChatID), logx.Err(err))
		}

		flipped = append(flipped, it.Username)

		if s.audit != nil {
			_ = s.audit.AppendAudit(ctx, storage.AuditEntry{
				At:     now,
				ChatID: it.ChatID,
				Item:   it.Username,
				Action: storage.ActionUnban,
				Detail: FormatDuration(elapsed),
			})
		}
	}

	if len(flipped) > 0 {
		// One save per cycle, not one per item.
		if err := s.reg.MarkUnbanned(flipped, now); err != nil {
			return fmt.Errorf("persist transitions: %w", err)
		}
		s.log.Info("unban transitions committed", logx.Int("count", len(flipped)))
	}

	return nil
}
