package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "unbanbot/pkg/logx"
)

func TestCheckStatusCodes(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/alice/":
			w.WriteHeader(http.StatusOK)
		case "/gone/":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, logx.Nop())

	exists, err := c.Check(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Check(alice): %v", err)
	}
	if !exists {
		t.Fatal("200 must mean exists")
	}
	if gotPath != "/alice/" {
		t.Fatalf("wrong profile path: %q", gotPath)
	}
	if gotUA != "Mozilla/5.0" {
		t.Fatalf("wrong user agent: %q", gotUA)
	}

	exists, err = c.Check(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Check(gone): %v", err)
	}
	if exists {
		t.Fatal("404 must mean not exists")
	}

	// Non-404 rejections (e.g. rate limiting) are also "not exists", not errors.
	exists, err = c.Check(context.Background(), "whatever")
	if err != nil || exists {
		t.Fatalf("429: got exists=%v err=%v", exists, err)
	}
}

func TestCheckTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, logx.Nop())
	if _, err := c.Check(context.Background(), "alice"); err == nil {
		t.Fatal("expected a transport error on timeout")
	}
}

func TestBaseURLNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alice/" {
			t.Errorf("trailing slash not trimmed from base: %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/"}, logx.Nop())
	if _, err := c.Check(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
}
