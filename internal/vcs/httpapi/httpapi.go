// Package httpapi is the minimal JSON-over-HTTP client shared by the
// Bitbucket backends, which have no maintained Go API client to lean on.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	base string
	auth func(*http.Request)
	http *http.Client
}

func New(base string, auth func(*http.Request)) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		auth: auth,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func BearerAuth(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func BasicAuth(username, password string) func(*http.Request) {
	return func(r *http.Request) {
		r.SetBasicAuth(username, password)
	}
}

// GetJSON fetches base+path with the given query and decodes the response
// body into out. Non-2xx responses become errors carrying a body snippet,
// never the request's credentials.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
