package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "unbanbot/pkg/logx"
)

func TestParseHHMM(t *testing.T) {
	h, m, err := parseHHMM("08:00")
	if err != nil || h != 8 || m != 0 {
		t.Fatalf("parseHHMM(08:00) = %d:%d, %v", h, m, err)
	}
	h, m, err = parseHHMM(" 23:59 ")
	if err != nil || h != 23 || m != 59 {
		t.Fatalf("parseHHMM(23:59) = %d:%d, %v", h, m, err)
	}
	for _, bad := range []string{"", "8", "24:00", "08:60", "ab:cd", "08:00:00"} {
		if _, _, err := parseHHMM(bad); err == nil {
			t.Errorf("parseHHMM(%q) accepted", bad)
		}
	}
}

func TestNextRunDaily(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())

	// Past today's boundary: the next deadline is tomorrow.
	now := time.Date(2026, 8, 28, 8, 30, 0, 0, time.UTC)
	next, err := s.NextRun("0 8 * * *", now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next after 08:30 = %v, want %v", next, want)
	}

	// Before the boundary: fires later today.
	now = time.Date(2026, 8, 28, 7, 30, 0, 0, time.UTC)
	next, err = s.NextRun("0 8 * * *", now)
	if err != nil {
		t.Fatal(err)
	}
	want = time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next after 07:30 = %v, want %v", next, want)
	}
}

func TestNextRunInterval(t *testing.T) {
	s := New(Config{}, logx.Nop())
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	next, err := s.NextRun("@every 5m0s", now)
	if err != nil {
		t.Fatal(err)
	}
	if got := next.Sub(now); got != 5*time.Minute {
		t.Fatalf("interval next = %v away, want 5m", got)
	}
}

func TestAddRequiresStart(t *testing.T) {
	s := New(Config{}, logx.Nop())
	err := s.AddInterval("x", time.Minute, 0, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("Add before Start must fail")
	}
}

func TestAddDailyRejectsBadClock(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.AddDaily("digest", "25:00", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("bad HH:MM accepted")
	}
	if err := s.AddDaily("digest", "08:00", 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("valid HH:MM rejected: %v", err)
	}
}

func TestIntervalJobRuns(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 4, HistorySize: 10, Timezone: "UTC"}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	var runs atomic.Int32
	err := s.AddInterval("tick", 20*time.Millisecond, time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hist := s.History()
	if len(hist) == 0 || hist[0].Name != "tick" {
		t.Fatalf("history missing run: %+v", hist)
	}
}
