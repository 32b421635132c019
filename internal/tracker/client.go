package tracker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "issuebot/pkg/logx"
)

var (
	ErrNotFound     = errors.New("issue not found")
	ErrUnauthorized = errors.New("tracker rejected credentials")
)

// Finder fetches one issue by key.
type Finder interface {
	FindIssue(ctx context.Context, key string) (*Issue, error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(ctx context.Context, key string) (*Issue, error)

func (f FinderFunc) FindIssue(ctx context.Context, key string) (*Issue, error) { return f(ctx, key) }

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRatePerSec = 5
	maxErrorBody      = 4 << 10
	maxIssueBody      = 8 << 20
)

type Config struct {
	Endpoint   Endpoint
	APIVersion string // default "2"
	User       string
	Password   string
	StrictSSL  bool
	Timeout    time.Duration
	RatePerSec int
	Log        logx.Logger

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client is a minimal Jira REST client: GET /rest/api/{v}/issue/{key}.
type Client struct {
	http    *http.Client
	api     string
	user    string
	pass    string
	limiter *rate.Limiter
	log     logx.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint.Host) == "" {
		return nil, errors.New("tracker host is required")
	}
	ver := strings.TrimSpace(cfg.APIVersion)
	if ver == "" {
		ver = "2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}

	hc := cfg.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if !cfg.StrictSSL {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-out via strict_ssl=false
		}
		hc = &http.Client{Timeout: cfg.Timeout, Transport: tr}
	}

	return &Client{
		http:    hc,
		api:     cfg.Endpoint.Origin() + "/rest/api/" + url.PathEscape(ver),
		user:    cfg.User,
		pass:    cfg.Password,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     cfg.Log,
	}, nil
}

// FindIssue fetches key. 404 wraps ErrNotFound; 401/403 wrap ErrUnauthorized.
func (c *Client) FindIssue(ctx context.Context, key string) (*Issue, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tracker rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api+"/issue/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !c.log.IsZero() {
		c.log.Debug("tracker response",
			logx.String("issue", key),
			logx.Int("status", resp.StatusCode),
			logx.Duration("took", time.Since(start)),
		)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: status %d: %w", key, resp.StatusCode, ErrUnauthorized)
	default:
		return nil, fmt.Errorf("%s: tracker status %d: %s", key, resp.StatusCode, errorMessage(resp.Body))
	}

	var issue Issue
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIssueBody)).Decode(&issue); err != nil {
		return nil, fmt.Errorf("decode issue %s: %w", key, err)
	}
	if issue.Key == "" {
		issue.Key = key
	}
	return &issue, nil
}

// errorMessage extracts Jira's errorMessages, falling back to the raw body.
func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var env struct {
		ErrorMessages []string `json:"errorMessages"`
	}
	if json.Unmarshal(body, &env) == nil && len(env.ErrorMessages) > 0 {
		return strings.Join(env.ErrorMessages, "; ")
	}
	return strings.TrimSpace(string(body))
}
