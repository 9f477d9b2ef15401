package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

)

var (
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrMissingHost       = errors.New("missing host")
	ErrTLSDisabled       = errors.New("https target but transport security is not configured")
	ErrTLSUnsupported    = errors.New("transport security is not supported on this target")
)

// Resolver turns a host name into addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Options configures NewHTTPClient. The zero value is a plain-HTTP client.
type Options struct {
	// TLS enables https targets. Firmware builds leave it nil.
	TLS *tls.Config
	// DialTimeout bounds each TCP connect; zero means no bound beyond the request context.
	DialTimeout time.Duration
	UserAgent   string
}

// HTTPClient sends requests over a transport that keeps at most one connection.
type HTTPClient struct {
	client    *http.Client
	resolver  Resolver
	dialer    net.Dialer
	tls       bool
	userAgent string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client that resolves names with r. A nil r uses net.DefaultResolver.
func NewHTTPClient(r Resolver, opts Options) (*HTTPClient, error) {
	if r == nil {
		r = net.DefaultResolver
	}
	c := &HTTPClient{
		resolver:  r,
		dialer:    net.Dialer{Timeout: opts.DialTimeout},
		tls:       opts.TLS != nil,
		userAgent: opts.UserAgent,
	}
	if c.userAgent == "" {
		c.userAgent = "wifistation"
	}

	tr := &http.Transport{
		DialContext:         c.dial,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		MaxConnsPerHost:     1,
		TLSClientConfig:     opts.TLS,
	}
	if opts.TLS != nil {
		if err := configureTLS(tr); err != nil {
			return nil, err
		}
	}
	c.client = &http.Client{Transport: tr}
	return c, nil
}

// Request builds a request for target. The target must be an absolute http URL, or https when
// transport security is configured.
func (c *HTTPClient) Request(ctx context.Context, method, target string) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
	case "https":
		if !c.tls {
			return nil, ErrTLSDisabled
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, ErrMissingHost
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// Send performs req and reads the body into buf. A body longer than buf is cut off and flagged
// in Response.Truncated.
func (c *HTTPClient) Send(req *http.Request, buf []byte) (Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	r := Response{
		Status:        resp.StatusCode,
		Proto:         resp.Proto,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
	}

	n, err := io.ReadFull(resp.Body, buf)
	r.N = n
	switch {
	case err == nil:
		var more [1]byte
		m, _ := io.ReadFull(resp.Body, more[:])
		r.Truncated = m > 0
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
	default:
		return r, fmt.Errorf("read body: %w", err)
	}
	return r, nil
}

func (c *HTTPClient) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host); ip != nil {
		return c.dialer.DialContext(ctx, network, addr)
	}

	addrs, err := c.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: no addresses", host)
	}

	var lastErr error
	for _, a := range addrs {
		conn, err := c.dialer.DialContext(ctx, network, net.JoinHostPort(a, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
