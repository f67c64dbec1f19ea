package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/nrevox/growfleet/internal/model"
)

// TokenFetcher obtains a login token out of band, given the scraped
// dashboard links. Used by operators with their own OAuth plumbing.
type TokenFetcher func(ctx context.Context, links DashboardLinks) (string, error)

var hiddenTokenRe = regexp.MustCompile(
	`<input[^>]*name\s*=\s*"_token"[^>]*value\s*=\s*"([^"]*)"|<input[^>]*value\s*=\s*"([^"]*)"[^>]*name\s*=\s*"_token"`)

// AcquireToken resolves the login token for the given credentials:
// refresh tokens pass through, fetcher callbacks are invoked, and the
// legacy method runs the GET + POST form flow against the Grow anchor.
func (c *Client) AcquireToken(
	ctx context.Context,
	creds model.Credentials,
	links *DashboardLinks,
	fetcher TokenFetcher,
) (string, error) {
	switch creds.Method {
	case model.LoginRefreshToken:
		if creds.Token == "" {
			return "", fmt.Errorf("refresh login without a token: %w", ErrCredentials)
		}
		return creds.Token, nil

	case model.LoginTokenFetcher:
		if fetcher == nil {
			return "", fmt.Errorf("fetcher login without a fetcher: %w", ErrCredentials)
		}
		var token string
		err := c.withRetry(ctx, "token-fetch", func() error {
			var err error
			token, err = fetcher(ctx, *links)
			return err
		})
		return token, err

	default:
		return c.legacyLogin(ctx, links.Grow, creds.GrowID, creds.Password)
	}
}

// legacyLogin runs the user/pass form flow: GET the grow link, lift the
// hidden _token input, POST the form, read the token out of the JSON
// reply. Rejections map to ErrCredentials and are never retried.
func (c *Client) legacyLogin(ctx context.Context, growLink, growID, password string) (string, error) {
	formToken, err := c.fetchHiddenToken(ctx, growLink)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"_token":   {formToken},
		"growId":   {growID},
		"password": {password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eps.Validate, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgentBrowser)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("validate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("validate rejected with status %d: %w", resp.StatusCode, ErrCredentials)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("validate request: status %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		return "", fmt.Errorf("decoding validate reply: %w", err)
	}
	if reply.Token == "" {
		return "", fmt.Errorf("validate reply %q (%s): %w", reply.Status, reply.Message, ErrCredentials)
	}
	return reply.Token, nil
}

func (c *Client) fetchHiddenToken(ctx context.Context, growLink string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, growLink, nil)
	if err != nil {
		return "", fmt.Errorf("building form request: %w", err)
	}
	req.Header.Set("User-Agent", userAgentBrowser)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("form request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("form request: status %d", resp.StatusCode)
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading form body: %w", err)
	}

	m := hiddenTokenRe.FindSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("form page carries no _token input")
	}
	if len(m[1]) > 0 {
		return string(m[1]), nil
	}
	return string(m[2]), nil
}
