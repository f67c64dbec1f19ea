package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nrevox/growfleet/internal/constants"
)

// Directory is the parsed server-directory response.
type Directory struct {
	Server   string
	Port     uint16
	LoginURL string
	Meta     string
	// Extra keeps every other key the body carried.
	Extra map[string]string
}

// FetchDirectory posts the version form to the directory endpoints in
// order and parses the key|value body, stopping at the end marker.
// Retried with the fixed backoff.
func (c *Client) FetchDirectory(ctx context.Context) (*Directory, error) {
	var dir *Directory
	err := c.withRetry(ctx, "server-directory", func() error {
		var lastErr error
		for _, endpoint := range c.eps.ServerDirectory {
			d, err := c.fetchDirectoryFrom(ctx, endpoint)
			if err != nil {
				lastErr = err
				continue
			}
			dir = d
			return nil
		}
		return lastErr
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

func (c *Client) fetchDirectoryFrom(ctx context.Context, endpoint string) (*Directory, error) {
	form := url.Values{
		"version":  {constants.GameVersion},
		"platform": {strconv.Itoa(constants.PlatformID)},
		"protocol": {strconv.Itoa(constants.ProtocolVersion)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building directory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgentDirectory)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory request: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading directory body: %w", err)
	}
	return parseDirectory(string(body))
}

// parseDirectory reads key|value lines up to the end marker.
func parseDirectory(body string) (*Directory, error) {
	dir := &Directory{Extra: make(map[string]string)}
	seenServer := false

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == constants.ServerDirectoryEndMarker {
			break
		}
		key, value, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		switch key {
		case "server":
			dir.Server = value
			seenServer = true
		case "port":
			port, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("directory port %q: %w", value, err)
			}
			dir.Port = uint16(port)
		case "loginurl":
			dir.LoginURL = value
		case "meta":
			dir.Meta = value
		default:
			dir.Extra[key] = value
		}
	}

	if !seenServer || dir.Port == 0 {
		return nil, fmt.Errorf("directory body missing server/port")
	}
	return dir, nil
}
