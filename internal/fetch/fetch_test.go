package fetch

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient records how often each step of the HTTP collaborator is used.
type countingClient struct {
	Client
	mu       sync.Mutex
	requests int
	sends    int
}

func (c *countingClient) Request(ctx context.Context, method, target string) (*http.Request, error) {
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
	return c.Client.Request(ctx, method, target)
}

func (c *countingClient) Send(req *http.Request, buf []byte) (Response, error) {
	c.mu.Lock()
	c.sends++
	c.mu.Unlock()
	return c.Client.Send(req, buf)
}

type staticResolver struct {
	mu    sync.Mutex
	hosts map[string][]string
	asked []string
}

func (r *staticResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = append(r.asked, host)
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func newCounting(t *testing.T, r Resolver, opts Options) *countingClient {
	t.Helper()
	hc, err := NewHTTPClient(r, opts)
	require.NoError(t, err)
	return &countingClient{Client: hc}
}

func TestBuildErrorSkipsSend(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr error
	}{
		{name: "no scheme", target: "://example.com/"},
		{name: "unsupported scheme", target: "ftp://example.com/", wantErr: ErrUnsupportedScheme},
		{name: "no host", target: "http:///index.html", wantErr: ErrMissingHost},
		{name: "tls not configured", target: "https://example.com/", wantErr: ErrTLSDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCounting(t, nil, Options{})
			out := NewExecutor(c).Execute(context.Background(), http.MethodGet, tt.target)

			assert.Equal(t, KindBuildError, out.Kind)
			assert.False(t, out.OK())
			var te *TransportError
			require.ErrorAs(t, out.Err, &te)
			assert.Equal(t, "build", te.Step)
			if tt.wantErr != nil {
				assert.ErrorIs(t, out.Err, tt.wantErr)
			}
			assert.Equal(t, 1, c.requests)
			assert.Zero(t, c.sends)
			assert.NotEmpty(t, out.ID)
		})
	}
}

func TestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wifistation", r.UserAgent())
		w.Header().Set("X-Station", "yes")
		_, _ = w.Write([]byte("hello from the access point"))
	}))
	defer srv.Close()

	c := newCounting(t, nil, Options{})
	out := NewExecutor(c).Execute(context.Background(), http.MethodGet, srv.URL+"/status")

	require.Equal(t, KindSuccess, out.Kind, "err: %v", out.Err)
	assert.NoError(t, out.Err)
	assert.Equal(t, http.StatusOK, out.Response.Status)
	assert.Equal(t, "yes", out.Response.Header.Get("X-Station"))
	assert.Equal(t, "hello from the access point", string(out.Body))
	assert.False(t, out.Response.Truncated)
	assert.Equal(t, 1, c.sends)
}

func TestBodySizes(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		wantN     int
		truncated bool
	}{
		{name: "empty", size: 0, wantN: 0},
		{name: "exactly buffer", size: BufferSize, wantN: BufferSize},
		{name: "one over", size: BufferSize + 1, wantN: BufferSize, truncated: true},
		{name: "much larger", size: 10 * BufferSize, wantN: BufferSize, truncated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bytes.Repeat([]byte("0123456789abcdef"), tt.size/16+1)[:tt.size]
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(body)
			}))
			defer srv.Close()

			c := newCounting(t, nil, Options{})
			out := NewExecutor(c).Execute(context.Background(), http.MethodGet, srv.URL)

			require.Equal(t, KindSuccess, out.Kind, "err: %v", out.Err)
			assert.Equal(t, tt.wantN, out.Response.N)
			assert.Equal(t, tt.truncated, out.Response.Truncated)
			assert.Equal(t, body[:tt.wantN], out.Body)
			assert.Equal(t, 1, c.sends)
		})
	}
}

func TestErrorStatusIsStillSuccess(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	out := NewExecutor(newCounting(t, nil, Options{})).Execute(context.Background(), http.MethodGet, srv.URL)
	require.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, http.StatusNotFound, out.Response.Status)
}

func TestSendErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	c := newCounting(t, nil, Options{})
	out := NewExecutor(c).Execute(context.Background(), http.MethodGet, target)

	assert.Equal(t, KindSendError, out.Kind)
	var te *TransportError
	require.ErrorAs(t, out.Err, &te)
	assert.Equal(t, "send", te.Step)
	assert.Nil(t, out.Body)
	assert.Equal(t, 1, c.requests)
	assert.Equal(t, 1, c.sends)
}

func TestResolverUsedForNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	r := &staticResolver{hosts: map[string][]string{"station.test": {host}}}
	c := newCounting(t, r, Options{})
	e := NewExecutor(c)

	out := e.Execute(context.Background(), http.MethodGet, "http://station.test:"+port+"/")
	require.Equal(t, KindSuccess, out.Kind, "err: %v", out.Err)
	assert.Equal(t, "ok", string(out.Body))

	out = e.Execute(context.Background(), http.MethodGet, "http://unknown.test:"+port+"/")
	assert.Equal(t, KindSendError, out.Kind)
	var dnsErr *net.DNSError
	assert.True(t, errors.As(out.Err, &dnsErr))

	assert.Equal(t, []string{"station.test", "unknown.test"}, r.asked)
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	out := NewExecutor(newCounting(t, nil, Options{}), WithTimeout(50*time.Millisecond)).
		Execute(context.Background(), http.MethodGet, srv.URL)
	assert.Equal(t, KindSendError, out.Kind)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "build_error", KindBuildError.String())
	assert.Equal(t, "send_error", KindSendError.String())
	assert.Equal(t, "success", KindSuccess.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
