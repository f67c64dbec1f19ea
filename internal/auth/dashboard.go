package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// DashboardLinks are the three login anchors scraped off the dashboard.
type DashboardLinks struct {
	Apple  string
	Google string
	Grow   string
}

var (
	anchorRe = regexp.MustCompile(`(?s)<a\b[^>]*>`)
	hrefRe   = regexp.MustCompile(`href\s*=\s*"([^"]*)"`)
)

// FetchDashboardLinks posts the url-encoded login blob to the dashboard
// and scrapes the three method anchors. Retried with the fixed backoff.
func (c *Client) FetchDashboardLinks(ctx context.Context, loginURL, blob string) (*DashboardLinks, error) {
	var links *DashboardLinks
	err := c.withRetry(ctx, "dashboard-links", func() error {
		l, err := c.fetchDashboard(ctx, loginURL, blob)
		if err != nil {
			return err
		}
		links = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (c *Client) fetchDashboard(ctx context.Context, loginURL, blob string) (*DashboardLinks, error) {
	body := url.QueryEscape(blob)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building dashboard request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgentBrowser)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashboard request: status %d", resp.StatusCode)
	}
	page, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading dashboard body: %w", err)
	}
	return parseDashboard(string(page))
}

// parseDashboard walks every anchor tag and keys it by the method name
// inside its optionChose onclick handler.
func parseDashboard(page string) (*DashboardLinks, error) {
	links := &DashboardLinks{}
	for _, tag := range anchorRe.FindAllString(page, -1) {
		href := hrefRe.FindStringSubmatch(tag)
		if href == nil {
			continue
		}
		switch {
		case strings.Contains(tag, "optionChose('Apple')"):
			links.Apple = href[1]
		case strings.Contains(tag, "optionChose('Google')"):
			links.Google = href[1]
		case strings.Contains(tag, "optionChose('Grow')"):
			links.Grow = href[1]
		}
	}
	if links.Grow == "" {
		return nil, fmt.Errorf("dashboard page carries no grow anchor")
	}
	return links, nil
}
