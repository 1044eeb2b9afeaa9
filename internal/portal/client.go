// Package portal talks to the ERC customer portal: it logs in with a
// cookie-backed session and downloads receipt documents per contract. Every
// request goes through one throttle.Spacer.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/joseph-ayodele/receipt-sync/internal/common"
	"github.com/joseph-ayodele/receipt-sync/internal/throttle"
)

var (
	// ErrFetch wraps every failure to obtain a receipt or a session.
	ErrFetch = errors.New("portal request failed")
	// ErrEmptyReceipt means the portal answered 2xx with no content.
	ErrEmptyReceipt = errors.New("portal returned an empty receipt")
	// ErrNotDocument means the portal answered with an HTML page, usually the
	// login form after the session expired.
	ErrNotDocument = errors.New("portal returned an HTML page instead of a receipt")
)

// Browser-like headers sent with the login form.
const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/87.0.4280.60 Safari/537.36"
	loginAccept      = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
)

// Config for the portal client.
type Config struct {
	Login              string
	Password           string
	LoginURL           string
	ReceiptURLTemplate string        // the first literal %s is replaced by the escaped contract id
	MinInterval        time.Duration // gap between consecutive requests
	Timeout            time.Duration // http client timeout
	UserAgent          string
}

type Client struct {
	cfg    Config
	http   *http.Client
	spacer *throttle.Spacer
	logger *slog.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the transport; a cookie jar is attached if it has none.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithSpacer shares or replaces the request spacer.
func WithSpacer(s *throttle.Spacer) Option {
	return func(cl *Client) {
		if s != nil {
			cl.spacer = s
		}
	}
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		spacer: throttle.New(cfg.MinInterval),
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Login posts the credentials form and keeps the session cookies for later
// requests. Errors are not retried.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"smth":     {""},
		"username": {c.cfg.Login},
		"password": {c.cfg.Password},
	}
	req, err := http.NewRequest(http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build login request: %v", ErrFetch, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", loginAccept)

	var resp response
	err = c.spacer.Do(ctx, func() error {
		var sendErr error
		resp, sendErr = send(ctx, c.http, req, "portal.login", c.logger)
		return sendErr
	})
	if err != nil {
		if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
			return fmt.Errorf("%w: login: %w: %w", ErrFetch, common.ErrUnauthorized, err)
		}
		return fmt.Errorf("%w: login: %w", ErrFetch, err)
	}
	c.logger.Debug("portal.login.ok")
	return nil
}

// FetchReceipt downloads the current receipt document for contract.
func (c *Client) FetchReceipt(ctx context.Context, contract string) ([]byte, error) {
	target := ReceiptURL(c.cfg.ReceiptURLTemplate, contract)
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build receipt request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	c.logger.Debug("portal.fetch.start", "contract", contract)
	var resp response
	err = c.spacer.Do(ctx, func() error {
		var sendErr error
		resp, sendErr = send(ctx, c.http, req, "portal.fetch", c.logger.With("contract", contract))
		return sendErr
	})
	if err != nil {
		if resp.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: receipt %s: %w: %w", ErrFetch, contract, common.ErrNotFound, err)
		}
		return nil, fmt.Errorf("%w: receipt %s: %w", ErrFetch, contract, err)
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: %w: contract %s", ErrFetch, ErrEmptyReceipt, contract)
	}
	if strings.HasPrefix(strings.ToLower(resp.ContentType), "text/html") {
		return nil, fmt.Errorf("%w: %w: contract %s", ErrFetch, ErrNotDocument, contract)
	}
	return resp.Body, nil
}

// ReceiptURL substitutes the escaped contract for the first %s in tmpl. The
// template is not a format string, so percent-escapes elsewhere survive.
func ReceiptURL(tmpl, contract string) string {
	return strings.Replace(tmpl, "%s", url.QueryEscape(contract), 1)
}
