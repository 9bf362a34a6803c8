package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/proxy"
	"golang.org/x/text/encoding"

	"github.com/nao1215/docmirror/internal/model"
)

const (
	// DefaultUserAgent identifies the mirror to the documentation server.
	DefaultUserAgent = "docmirror/1.0 (Documentation Scraper; +https://github.com/nao1215/docmirror)"

	// DefaultTimeout bounds a single request including the body transfer.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize is the number of body bytes read per response.
	DefaultMaxBodySize int64 = 10 * 1024 * 1024

	// maxRedirects stops redirect loops.
	maxRedirects = 10
)

// Client retrieves documents over HTTP. It is safe for concurrent use.
type Client struct {
	http        *http.Client
	userAgent   string
	maxBodySize int64
	timeout     time.Duration
	headers     map[string]string
	proxyAddr   string
	robots      *robotsCache
	respect     bool
	logger      *slog.Logger
	base        http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxBodySize sets the maximum number of body bytes read per response.
// Longer bodies are truncated.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		c.maxBodySize = size
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithProxy routes all requests through the SOCKS5 proxy at addr
// ("host:port").
func WithProxy(addr string) Option {
	return func(c *Client) {
		c.proxyAddr = addr
	}
}

// WithRobots makes the client honor robots.txt of every host it visits.
func WithRobots(respect bool) Option {
	return func(c *Client) {
		c.respect = respect
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTransport sets the base transport, mainly for tests.
// It is ignored when a proxy is configured.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.base
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
	}
	if c.proxyAddr != "" {
		t, err := newProxyTransport(c.proxyAddr)
		if err != nil {
			return nil, err
		}
		base = t
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	c.http = &http.Client{
		Transport: &headerInjectingTransport{
			base:      base,
			userAgent: c.userAgent,
			headers:   c.headers,
		},
		Timeout: c.timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	if c.respect {
		c.robots = newRobotsCache(c.http, c.userAgent)
	}

	return c, nil
}

// newProxyTransport creates a transport that dials through a SOCKS5 proxy.
func newProxyTransport(addr string) (*http.Transport, error) {
	if !isValidProxyAddress(addr) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, address)
			}
			return dialer.Dial(network, address)
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}, nil
}

// isValidProxyAddress checks that address is "host:port" with a port in
// 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Fetch retrieves pageURL. Non-2xx responses, transport failures and URLs
// disallowed by robots.txt are returned as a *FetchError.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*model.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	if c.robots != nil && !c.robots.allowed(ctx, u) {
		return nil, &FetchError{URL: pageURL, Err: ErrDisallowed}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: ErrStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	doc := &model.Document{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Headers:     resp.Header,
		Body:        body,
	}

	if doc.IsHTML() {
		var isUTF8 bool
		doc.Body, isUTF8 = c.toUTF8(pageURL, body, contentType)
		if isUTF8 {
			doc.Charset = model.CharsetUTF8
		}
	}

	c.logger.Debug("fetched page",
		"url", pageURL,
		"status", resp.StatusCode,
		"content_type", contentType,
		"bytes", len(doc.Body),
	)

	return doc, nil
}

// toUTF8 decodes body to UTF-8 using the declared charset. Bodies without a
// declaration that are not valid UTF-8 go through charset detection.
// Undecodable bodies are returned unchanged and reported as not UTF-8.
func (c *Client) toUTF8(pageURL string, body []byte, contentType string) ([]byte, bool) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && !utf8.Valid(body) {
		if detected, detectedName, ok := detectEncoding(body); ok {
			enc, name = detected, detectedName
		}
	}
	if enc == nil {
		return body, false
	}
	if strings.EqualFold(name, "utf-8") {
		return body, true
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		c.logger.Debug("failed to decode body", "url", pageURL, "charset", name, "error", err)
		return body, false
	}
	c.logger.Debug("decoded body to UTF-8", "url", pageURL, "charset", name)
	return decoded, true
}

// minDetectConfidence is the chardet confidence below which the
// detected charset is ignored.
const minDetectConfidence = 50

// detectEncoding guesses the charset of an undeclared HTML body.
func detectEncoding(body []byte) (encoding.Encoding, string, bool) {
	result, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil || result.Confidence < minDetectConfidence {
		return nil, "", false
	}
	enc, name := charset.Lookup(result.Charset)
	if enc == nil {
		return nil, "", false
	}
	return enc, name, true
}
