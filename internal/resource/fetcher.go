package resource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"
)

// DefaultMaxPayloadBytes bounds a remote payload unless MaxPayloadBytes
// says otherwise.
const DefaultMaxPayloadBytes int64 = 32 << 20

// ErrPayloadTooLarge is returned when a remote body exceeds the size limit.
var ErrPayloadTooLarge = errors.New("payload too large")

// FetchOptions carries the per-resource transport settings.
type FetchOptions struct {
	Proxy    *url.URL
	Timeouts Timeouts
}

// Fetcher retrieves the bytes at a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string, opts FetchOptions) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, location string, opts FetchOptions) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, location string, opts FetchOptions) ([]byte, error) {
	return f(ctx, location, opts)
}

// DefaultFetcher resolves http(s):// URLs over the network, file:// URLs and
// bare paths from disk, and embed://<mount>/<path> from mounted filesystems.
type DefaultFetcher struct {
	mounts        map[string]fs.FS
	skipTLSVerify bool
	maxBytes      int64

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewFetcher returns a fetcher with the given embed mounts.
func NewFetcher(mounts map[string]fs.FS) *DefaultFetcher {
	m := make(map[string]fs.FS, len(mounts))
	for k, v := range mounts {
		m[k] = v
	}
	return &DefaultFetcher{
		mounts:   m,
		maxBytes: DefaultMaxPayloadBytes,
		clients:  make(map[string]*http.Client),
	}
}

// InsecureSkipVerify disables TLS verification for servers with broken chains.
func (f *DefaultFetcher) InsecureSkipVerify(skip bool) {
	f.mu.Lock()
	f.skipTLSVerify = skip
	f.clients = make(map[string]*http.Client)
	f.mu.Unlock()
}

// MaxPayloadBytes caps the size of remote bodies. n <= 0 restores the default.
func (f *DefaultFetcher) MaxPayloadBytes(n int64) {
	if n <= 0 {
		n = DefaultMaxPayloadBytes
	}
	f.mu.Lock()
	f.maxBytes = n
	f.mu.Unlock()
}

func (f *DefaultFetcher) Fetch(ctx context.Context, location string, opts FetchOptions) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare path, including windows drive letters
		return os.ReadFile(location)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, location, opts)
	case "file":
		return os.ReadFile(u.Path)
	case "embed":
		fsys, ok := f.mounts[u.Host]
		if !ok {
			return nil, fmt.Errorf("no embedded filesystem mounted as %q", u.Host)
		}
		return fs.ReadFile(fsys, strings.TrimPrefix(path.Clean(u.Path), "/"))
	default:
		return nil, fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
}

func (f *DefaultFetcher) fetchHTTP(ctx context.Context, location string, opts FetchOptions) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "fxratemanager/1.0")

	resp, err := f.client(opts).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", location, resp.Status)
	}
	f.mu.Lock()
	limit := f.maxBytes
	f.mu.Unlock()
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("GET %s: %w (limit %d bytes)", location, ErrPayloadTooLarge, limit)
	}
	return data, nil
}

func (f *DefaultFetcher) client(opts FetchOptions) *http.Client {
	key := opts.Timeouts.Connect.String() + "|" + opts.Timeouts.Read.String() + "|" + opts.Timeouts.Write.String()
	if opts.Proxy != nil {
		key += "|" + opts.Proxy.String()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c
	}
	c := newHTTPClient(opts, f.skipTLSVerify)
	f.clients[key] = c
	return c
}

// newHTTPClient maps connect to the dialer, read to the response header
// wait and write to the TLS handshake. The client timeout bounds the sum.
func newHTTPClient(opts FetchOptions, skipTLSVerify bool) *http.Client {
	dialer := &net.Dialer{Timeout: opts.Timeouts.Connect, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: opts.Timeouts.Read,
		TLSHandshakeTimeout:   opts.Timeouts.Write,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(opts.Proxy)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var total time.Duration
	if opts.Timeouts.Read > 0 {
		total = opts.Timeouts.Connect + opts.Timeouts.Write + opts.Timeouts.Read
	}
	return &http.Client{Timeout: total, Transport: transport}
}
