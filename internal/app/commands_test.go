package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "unbanbot/internal/transport"
	logx "unbanbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

type sentMsg struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

func textUpdate(chatID int64, text string) kit.Update {
	return kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ChatID: chatID, FromID: chatID, Text: text},
	}
}

func runDispatch(t *testing.T, m *CommandManager, updates ...kit.Update) {
	t.Helper()
	ch := make(chan kit.Update, len(updates))
	for _, up := range updates {
		ch <- up
	}
	close(ch)
	if err := m.DispatchLoop(context.Background(), ch); err != nil {
		t.Fatalf("DispatchLoop: %v", err)
	}
}

func TestDispatchRoutesCommand(t *testing.T) {
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad)

	var (
		mu      sync.Mutex
		gotArgs []string
	)
	m.Register(Command{
		Name:        "remove",
		Description: "stop monitoring a username",
		Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			gotArgs = req.Args
			mu.Unlock()
			_, _ = req.Adapter.SendText(ctx, req.Chat, "ok", nil)
			return nil
		},
	})

	runDispatch(t, m, textUpdate(42, "/remove@SomeBot alice"))

	mu.Lock()
	defer mu.Unlock()
	if len(gotArgs) != 1 || gotArgs[0] != "alice" {
		t.Fatalf("args: %v", gotArgs)
	}
	msgs := ad.messages()
	if len(msgs) != 1 || msgs[0].text != "ok" || msgs[0].to.ChatID != 42 {
		t.Fatalf("reply: %+v", msgs)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad)

	runDispatch(t, m, textUpdate(42, "/bogus"))

	msgs := ad.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "/help") {
		t.Fatalf("expected unknown-command hint, got %+v", msgs)
	}
}

func TestDispatchFallbackGetsPlainText(t *testing.T) {
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad)

	var (
		mu      sync.Mutex
		gotArgs []string
	)
	m.SetFallback(func(ctx context.Context, req *Request) error {
		mu.Lock()
		gotArgs = req.Args
		mu.Unlock()
		return nil
	})

	runDispatch(t, m, textUpdate(42, "alice  bob\ncarol"))

	mu.Lock()
	defer mu.Unlock()
	if len(gotArgs) != 3 || gotArgs[0] != "alice" || gotArgs[2] != "carol" {
		t.Fatalf("fallback args: %v", gotArgs)
	}
}

func TestHelpListsRegisteredCommands(t *testing.T) {
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad)
	m.Register(Command{
		Name:        "status",
		Description: "list usernames you are monitoring",
		Usage:       "/status",
		Handle:      func(context.Context, *Request) error { return nil },
	})

	runDispatch(t, m, textUpdate(42, "/help"))

	msgs := ad.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one help reply, got %d", len(msgs))
	}
	for _, want := range []string{"/help", "/status — list usernames you are monitoring", "usernames to monitor"} {
		if !strings.Contains(msgs[0].text, want) {
			t.Fatalf("help text missing %q:\n%s", want, msgs[0].text)
		}
	}
}

func TestBotCommandsSorted(t *testing.T) {
	m := NewCommandManager(logx.Nop(), &fakeAdapter{})
	m.Register(
		Command{Name: "status", Description: "b", Handle: func(context.Context, *Request) error { return nil }},
		Command{Name: "remove", Description: "a", Handle: func(context.Context, *Request) error { return nil }},
	)
	cmds := m.BotCommands()
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands (incl. help), got %d", len(cmds))
	}
	for i := 1; i < len(cmds); i++ {
		if cmds[i-1].Command > cmds[i].Command {
			t.Fatalf("not sorted: %+v", cmds)
		}
	}
}

func TestMWPanicRecover(t *testing.T) {
	h := Chain(func(context.Context, *Request) error {
		panic("boom")
	}, MWPanicRecover(logx.Nop()))

	err := h(context.Background(), &Request{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("panic not converted to error: %v", err)
	}
}

func TestMWTimeout(t *testing.T) {
	h := Chain(func(ctx context.Context, _ *Request) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, MWTimeout(20*time.Millisecond))

	start := time.Now()
	err := h(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout not enforced")
	}
}
