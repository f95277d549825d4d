package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	kit "unbanbot/internal/transport"
	logx "unbanbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{}, nil
}

func TestNotify(t *testing.T) {
	ad := &fakeAdapter{}
	n := New(ad, 10, logx.Nop())

	err := n.Notify(context.Background(), kit.Notification{
		Target: kit.ChatTarget{ChatID: 42},
		Text:   "hello",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(ad.sent) != 1 || ad.sent[0] != "hello" {
		t.Fatalf("sent: %v", ad.sent)
	}
	if hist := n.History(); len(hist) != 1 || hist[0].Text != "hello" {
		t.Fatalf("history: %+v", hist)
	}
}

func TestNotifyPropagatesSendError(t *testing.T) {
	ad := &fakeAdapter{err: errors.New("forbidden: bot was blocked")}
	n := New(ad, 10, logx.Nop())

	err := n.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "x"})
	if err == nil {
		t.Fatal("send error swallowed")
	}
}

func TestNotifyHonorsContextWhileRateLimited(t *testing.T) {
	n := New(&fakeAdapter{}, 1, logx.Nop())

	// Exhaust the burst, then a canceled context must abort the wait.
	_ = n.Notify(context.Background(), kit.Notification{Text: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Notify(ctx, kit.Notification{Text: "b"}); err == nil {
		t.Fatal("expected context error while rate limited")
	}
}
