package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goodtune/wifimeter/internal/metrics"
	"github.com/rs/zerolog"
)

// maxPageSize bounds how much of a portal response is read.
const maxPageSize = 2 << 20

// Config holds portal client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client fetches the portal dashboard, logging in through the portal's
// form when it is presented first.
type Client struct {
	httpClient *http.Client
	url        string
	logger     zerolog.Logger
}

// NewClient creates a portal client. A cookie jar keeps the login session
// across the form submission and the dashboard fetch.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("portal URL is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid portal URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		url:        cfg.URL,
		logger:     logger.With().Str("component", "portal").Logger(),
	}, nil
}

// FetchUsage loads the portal page, submits the login form when one is
// shown and extracts {username, minutes} from the resulting dashboard.
func (c *Client) FetchUsage(ctx context.Context, username, password string) (Result, error) {
	page, err := c.get(ctx, c.url)
	if err != nil {
		metrics.ScrapesTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("fetch portal page: %w", err)
	}

	if isLoginPage(page) {
		c.logger.Debug().Str("url", c.url).Msg("Portal presented a login form, submitting credentials")
		page, err = c.login(ctx, page, username, password)
		if err != nil {
			metrics.ScrapesTotal.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("portal login: %w", err)
		}
	}

	result, err := Extract(pageText(page))
	if err != nil {
		metrics.ScrapesTotal.WithLabelValues("no_data").Inc()
		return Result{}, err
	}

	metrics.ScrapesTotal.WithLabelValues("ok").Inc()
	c.logger.Info().
		Str("username", result.Username).
		Int("minutes", result.Minutes).
		Msg("Portal usage scraped")

	return result, nil
}

func (c *Client) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	return c.do(req)
}

// login posts the credentials to the form's action URL using the field
// names found in the page, then returns the response body.
func (c *Client) login(ctx context.Context, page, username, password string) (string, error) {
	action := formAction(page, c.url)

	form := url.Values{}
	form.Set(userFieldName(page), username)
	form.Set(passwordFieldName(page), password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	return string(body), nil
}

var (
	passwordInputRe = regexp.MustCompile(`(?i)<input[^>]*type=["']?password`)
	formActionRe    = regexp.MustCompile(`(?i)<form[^>]*action=["']([^"']+)["']`)
	userInputRe     = regexp.MustCompile(`(?i)<input[^>]*name=["']([^"']*(?:email|user)[^"']*)["']`)
	passInputRe     = regexp.MustCompile(`(?i)<input[^>]*type=["']?password["']?[^>]*name=["']([^"']+)["']|<input[^>]*name=["']([^"']+)["'][^>]*type=["']?password`)
	tagRe           = regexp.MustCompile(`<[^>]*>`)
	scriptRe        = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

func isLoginPage(page string) bool {
	return passwordInputRe.MatchString(page)
}

func formAction(page, base string) string {
	match := formActionRe.FindStringSubmatch(page)
	if match == nil {
		return base
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return base
	}
	actionURL, err := url.Parse(match[1])
	if err != nil {
		return base
	}
	return baseURL.ResolveReference(actionURL).String()
}

func userFieldName(page string) string {
	if match := userInputRe.FindStringSubmatch(page); match != nil {
		return match[1]
	}
	return "username"
}

func passwordFieldName(page string) string {
	if match := passInputRe.FindStringSubmatch(page); match != nil {
		if match[1] != "" {
			return match[1]
		}
		if match[2] != "" {
			return match[2]
		}
	}
	return "password"
}

// pageText reduces an HTML page to its visible text, which is what the
// extraction patterns run against.
func pageText(page string) string {
	text := scriptRe.ReplaceAllString(page, " ")
	text = tagRe.ReplaceAllString(text, " ")
	return text
}
