// Package checker implements the remote existence predicate: does a profile
// page for the username currently resolve?
package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "unbanbot/pkg/logx"
)

const defaultUserAgent = "Mozilla/5.0"

type Config struct {
	// BaseURL is the profile URL prefix, e.g. "https://www.instagram.com".
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://www.instagram.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Check reports whether the username's profile page exists (HTTP 200).
// Any transport failure is returned as an error; callers treat that as
// "unknown, retry later", never as a transition.
func (c *Client) Check(ctx context.Context, username string) (bool, error) {
	url := fmt.Sprintf("%s/%s/", c.baseURL, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	exists := resp.StatusCode == http.StatusOK
	c.log.Debug("existence check", logx.String("username", username), logx.Int("status", resp.StatusCode), logx.Bool("exists", exists))
	return exists, nil
}
