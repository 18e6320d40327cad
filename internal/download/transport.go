package download

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// Transport opens a stream for a URL. Implementations must honour ctx.
type Transport interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %s", e.URL, e.Status)
}

// HTTPOptions configures NewHTTPTransport.
type HTTPOptions struct {
	UserAgent          string
	InsecureSkipVerify bool
	Timeout            time.Duration // per request, 0 disables
	Headers            map[string]string
}

// HTTPTransport fetches over HTTP(S). Proxies are taken from HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
type HTTPTransport struct {
	client  *http.Client
	opts    HTTPOptions
	proxyFn func(*url.URL) (*url.URL, error)
}

// NewHTTPTransport builds a transport with proxy-from-environment and the given options.
func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	t := &HTTPTransport{opts: opts, proxyFn: httpproxy.FromEnvironment().ProxyFunc()}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = func(req *http.Request) (*url.URL, error) {
		return t.proxyFn(req.URL)
	}
	if opts.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit --disable-ssl-verification
	}
	t.client = &http.Client{Transport: base, Timeout: opts.Timeout}
	return t
}

// Client exposes the configured client for JSON API calls that share proxy and TLS settings.
func (t *HTTPTransport) Client() *http.Client {
	return t.client
}

// Get issues a GET and returns the body of a 2xx response.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if t.opts.UserAgent != "" {
		req.Header.Set("User-Agent", t.opts.UserAgent)
	}
	for k, v := range t.opts.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, nil
}

// FileTransport serves file:// URLs and bare paths, for local mirrors.
type FileTransport struct{}

func (FileTransport) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	return os.Open(path)
}

// SchemeTransport dispatches on the URL scheme: file URLs go to File, everything else to Default.
type SchemeTransport struct {
	Default Transport
	File    Transport
}

func (s SchemeTransport) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" && s.File != nil {
		return s.File.Get(ctx, rawURL)
	}
	return s.Default.Get(ctx, rawURL)
}
