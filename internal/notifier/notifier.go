// Package notifier sends outbound chat messages through the transport
// adapter, with a shared rate limit and a small in-memory send history.
package notifier

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	kit "unbanbot/internal/transport"
	logx "unbanbot/pkg/logx"
)

const historyMax = 300

type Service struct {
	adapter kit.Adapter
	log     logx.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	history []kit.Notification
}

func New(adapter kit.Adapter, ratePerSec int, log logx.Logger) *Service {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Notify delivers one message. Errors are logged and returned; callers decide
// whether delivery failure matters (state transitions never depend on it).
func (n *Service) Notify(ctx context.Context, noti kit.Notification) error {
	if noti.Options == nil {
		noti.Options = &kit.SendOptions{DisablePreview: true}
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := n.adapter.SendText(ctx, noti.Target, noti.Text, noti.Options)
	if err != nil {
		n.log.Warn("notification send failed",
			logx.Int64("chat_id", noti.Target.ChatID),
			logx.Int("thread_id", noti.Target.ThreadID),
			logx.Err(err))
	} else {
		n.log.Debug("notification sent",
			logx.Int64("chat_id", noti.Target.ChatID),
			logx.Int("thread_id", noti.Target.ThreadID))
	}
	n.appendHistory(noti)
	return err
}

func (n *Service) appendHistory(x kit.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, x)
	if len(n.history) > historyMax {
		n.history = n.history[len(n.history)-historyMax:]
	}
}

// History returns a copy of the recent send history (newest last).
func (n *Service) History() []kit.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]kit.Notification(nil), n.history...)
}
