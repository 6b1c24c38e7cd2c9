package portal

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jgoulah/gasforecast/internal/config"
)

const (
	defaultBaseURL = "https://www.atmosenergy.com"

	loginPagePath    = "/accountcenter/logon/login.html"
	authActionPath   = "/accountcenter/logon/authenticate.html"
	landingPath      = "/accountcenter/usagehistory/UsageHistoryLanding.html"
	dailyUsagePath   = "/accountcenter/usagehistory/dailyUsageDownload.html"
	monthlyUsagePath = "/accountcenter/usagehistory/monthlyUsageDownload.html"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxAttempts    = 3
	connectTimeout = 10 * time.Second
	requestTimeout = 60 * time.Second
)

// Resource identifies a downloadable usage file.
type Resource string

const (
	ResourceDailyUsage   Resource = "daily"
	ResourceMonthlyUsage Resource = "monthly"
)

// Client downloads usage files from the Atmos Energy account portal. It owns
// the session lifecycle: the cookie jar, when the session was last
// authenticated, and the rate limiter that spaces out upstream requests.
// Session state is never persisted; a restart always re-authenticates.
type Client struct {
	baseURL  string
	username string
	password string

	httpClient *http.Client
	jar        http.CookieJar

	minInterval time.Duration

	mu              sync.Mutex
	lastRequest     time.Time
	authenticatedAt time.Time
	sessionValid    bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the portal base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithMinInterval overrides the minimum spacing between usage downloads.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.minInterval = d }
}

// NewClient creates a portal client for the given account.
func NewClient(username, password string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)

	c := &Client{
		baseURL:     defaultBaseURL,
		username:    username,
		password:    password,
		jar:         jar,
		minInterval: 5 * time.Minute,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SeedCookies loads cookies captured by a browser-assisted login into the
// session jar. The session is still validated before being trusted.
func (c *Client) SeedCookies(cookies []config.Cookie) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		hc := &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			HttpOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
		}
		// A zero expiry means a session cookie; converting it would
		// produce an already-expired timestamp the jar discards.
		if ck.Expires > 0 {
			hc.Expires = time.Unix(int64(ck.Expires), 0)
		}
		httpCookies = append(httpCookies, hc)
	}
	c.jar.SetCookies(base, httpCookies)

	// Trust the seeded session provisionally; CheckSessionValid probes the
	// portal before any download relies on it.
	c.mu.Lock()
	c.sessionValid = true
	c.authenticatedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Invalidate drops the current session. The next download re-authenticates.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionValid = false
	c.authenticatedAt = time.Time{}
}

// AuthenticatedAt returns when the session was last established, zero if never.
func (c *Client) AuthenticatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticatedAt
}

// CheckSessionValid issues a lightweight request without following redirects
// and reports whether the current session is still accepted. A redirect
// toward the login flow means the portal dropped the session.
func (c *Client) CheckSessionValid(ctx context.Context) bool {
	c.mu.Lock()
	valid := c.sessionValid
	c.mu.Unlock()
	if !valid {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+landingPath, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	// Same jar, but redirects are not followed so the Location header is visible.
	noRedirect := &http.Client{
		Jar:     c.jar,
		Timeout: requestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := noRedirect.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if IsLoginURL(resp.Header.Get("Location")) {
			return false
		}
	}
	return resp.StatusCode == http.StatusOK
}

// EnsureSession returns immediately when a cached session is confirmed valid,
// otherwise performs the full login handshake: fetch the login form, submit
// credentials through the dynamically extracted field set, then load the
// landing page that activates the session for file downloads.
func (c *Client) EnsureSession(ctx context.Context) error {
	if c.CheckSessionValid(ctx) {
		return nil
	}
	c.Invalidate()

	// Step 1: fetch the login form and extract its fields and tokens.
	loginURL := c.baseURL + loginPagePath
	body, finalURL, status, err := c.get(ctx, loginURL, c.baseURL+"/")
	if err != nil {
		return &APIError{Message: fmt.Sprintf("fetching login page: %v", err)}
	}
	if status != http.StatusOK {
		return &APIError{StatusCode: status, Message: fmt.Sprintf("login page returned status %d", status)}
	}

	form, err := ExtractForm(body)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("extracting login form: %v", err)}
	}
	form.SetCredentials(c.username, c.password)

	// Step 2: submit credentials.
	actionURL := c.resolveAction(finalURL, form.Action)
	values := url.Values{}
	for name, value := range form.Fields {
		values.Set(name, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, actionURL, strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", loginURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("submitting login: %v", err)}
	}
	authBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &APIError{Message: fmt.Sprintf("reading login response: %v", err)}
	}

	if err := c.checkLoginResponse(resp, authBody); err != nil {
		return err
	}

	// Step 3: load the landing page to fully activate the session. Without
	// this the portal serves empty downloads even though login succeeded.
	_, landingFinal, landingStatus, err := c.get(ctx, c.baseURL+landingPath, actionURL)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("activating session: %v", err)}
	}
	if IsLoginURL(landingFinal) {
		return &AuthError{StatusCode: landingStatus, Message: "session activation failed: landing page redirected to login"}
	}
	if landingStatus != http.StatusOK {
		return &APIError{StatusCode: landingStatus, Message: fmt.Sprintf("session activation returned status %d", landingStatus)}
	}

	c.mu.Lock()
	c.sessionValid = true
	c.authenticatedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// checkLoginResponse decides whether the credential submission succeeded.
// Three independent signals are checked so a single upstream change doesn't
// silently break detection: status code, redirect target, and known
// rejection phrases in the body.
func (c *Client) checkLoginResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("login rejected with status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("login returned unexpected status %d", resp.StatusCode)}
	}

	finalURL := resp.Request.URL.String()
	if IsLoginURL(finalURL) {
		return &AuthError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("login redirected back to %s", finalURL)}
	}

	lower := strings.ToLower(string(body))
	for _, phrase := range loginPhrases {
		if strings.Contains(lower, phrase) {
			return &AuthError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("credentials rejected (matched %q)", phrase)}
		}
	}
	return nil
}

// Fetch downloads the raw bytes of a usage file. Calls are rate limited:
// a second download inside the minimum interval blocks until the interval
// has elapsed rather than failing. The returned payload has passed both
// verification passes and is safe to hand to the parser.
func (c *Client) Fetch(ctx context.Context, resource Resource) ([]byte, error) {
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	if err := c.EnsureSession(ctx); err != nil {
		return nil, err
	}

	var path string
	switch resource {
	case ResourceDailyUsage:
		path = dailyUsagePath
	case ResourceMonthlyUsage:
		path = monthlyUsagePath
	default:
		return nil, fmt.Errorf("unknown resource: %s", resource)
	}

	reqURL := fmt.Sprintf("%s%s?billingPeriod=Current", c.baseURL, path)
	referer := c.baseURL + landingPath

	body, finalURL, status, err := c.getWithRetry(ctx, reqURL, referer)
	if err != nil {
		return nil, err
	}

	// Header/redirect pass first: a login or error URL means the body is
	// not data no matter what it contains.
	if verr := CheckFinalURL(finalURL, status); verr != nil {
		if _, isAuth := verr.(*AuthError); isAuth {
			c.Invalidate()
		}
		return nil, verr
	}

	// Content pass: catch HTML masquerading as the download.
	if verr := CheckPayload(body); verr != nil {
		if _, isAuth := verr.(*AuthError); isAuth {
			c.Invalidate()
		}
		return nil, verr
	}

	return body, nil
}

// waitTurn reserves the next request slot, sleeping if the previous request
// was inside the minimum interval. Waiting is a scheduled delay, not an
// error; only context cancellation interrupts it.
func (c *Client) waitTurn(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	next := c.lastRequest.Add(c.minInterval)
	if next.Before(now) {
		next = now
	}
	c.lastRequest = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// get performs a single GET, following redirects, and returns the body, the
// final URL after redirects, and the status code.
func (c *Client) get(ctx context.Context, reqURL, referer string) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", 0, fmt.Errorf("reading response body: %w", err)
	}

	return body, resp.Request.URL.String(), resp.StatusCode, nil
}

// getWithRetry retries transient failures (transport errors, timeouts, 5xx)
// with exponential backoff. Client errors and auth redirects surface
// immediately; the exhausted final attempt surfaces as an APIError.
func (c *Client) getWithRetry(ctx context.Context, reqURL, referer string) ([]byte, string, int, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, "", 0, ctx.Err()
			}
		}

		body, finalURL, status, err := c.get(ctx, reqURL, referer)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", 0, ctx.Err()
			}
			// Transport errors, including expired timeouts, are transient.
			lastErr = err
			continue
		}

		switch {
		case status >= 500:
			lastErr = fmt.Errorf("server returned status %d", status)
			continue
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			c.Invalidate()
			return nil, "", 0, &AuthError{StatusCode: status, Message: fmt.Sprintf("request rejected with status %d", status)}
		case status >= 400:
			return nil, "", 0, &APIError{StatusCode: status, Message: fmt.Sprintf("request failed with status %d", status)}
		}

		return body, finalURL, status, nil
	}

	return nil, "", 0, &APIError{Message: fmt.Sprintf("request failed after %d attempts: %v", maxAttempts, lastErr)}
}

// resolveAction resolves a form action against the page it was served from.
// Actions are usually absolute paths but have been served relative before.
func (c *Client) resolveAction(pageURL, action string) string {
	if action == "" {
		return c.baseURL + authActionPath
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return c.baseURL + authActionPath
	}
	ref, err := url.Parse(action)
	if err != nil {
		return c.baseURL + authActionPath
	}
	return base.ResolveReference(ref).String()
}
