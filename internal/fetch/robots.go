package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsCache holds the parsed robots.txt of each host seen by a Client.
// A host whose robots.txt cannot be retrieved allows everything.
type robotsCache struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	rules map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		rules:     make(map[string]*robotstxt.RobotsData),
	}
}

// allowed reports whether target may be fetched.
func (r *robotsCache) allowed(ctx context.Context, target *url.URL) bool {
	data := r.lookup(ctx, target)
	if data == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return data.TestAgent(path, r.userAgent)
}

func (r *robotsCache) lookup(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(target.Host)

	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.rules[host]; ok {
		return data
	}

	data := r.fetch(ctx, target.Scheme+"://"+target.Host+"/robots.txt")
	if ctx.Err() == nil {
		r.rules[host] = data
	}
	return data
}

func (r *robotsCache) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}
