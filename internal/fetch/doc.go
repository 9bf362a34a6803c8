// Package fetch implements the HTTP gateway used by the crawler.
//
// A Client sends every request with the configured User-Agent and extra
// headers, limits the response body size, decodes the body to UTF-8 and
// turns non-2xx responses into a *FetchError. Requests can optionally be
// routed through a SOCKS5 proxy and checked against robots.txt.
package fetch
