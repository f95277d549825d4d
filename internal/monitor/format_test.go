package monitor

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "less than a minute"},
		{59 * time.Second, "less than a minute"},
		{-5 * time.Minute, "less than a minute"},
		{time.Minute, "1 minute"},
		{2 * time.Minute, "2 minutes"},
		{time.Hour, "1 hour"},
		{time.Hour + time.Minute, "1 hour 1 minute"},
		{25 * time.Hour, "1 day 1 hour"},
		{24 * time.Hour, "1 day"},
		{49*time.Hour + 30*time.Minute, "2 days 1 hour 30 minutes"},
		{72*time.Hour + 5*time.Minute, "3 days 5 minutes"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.d); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
