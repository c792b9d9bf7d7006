package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/odvcencio/gitlite/pkg/object"
)

// DefaultUserAgent identifies this client to servers.
const DefaultUserAgent = "gitlite/0.1"

// Endpoint is a smart-HTTP repository URL with credentials split off.
// BaseURL has no trailing slash and no userinfo.
type Endpoint struct {
	Raw     string
	BaseURL string
	user    string
	pass    string
}

// ParseEndpoint validates a repository URL. Only http and https are
// supported; userinfo becomes Basic credentials.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("remote URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("remote URL %q: unsupported scheme %q (want http or https)", raw, u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("remote URL %q must include a host", raw)
	}

	ep := Endpoint{Raw: raw}
	if u.User != nil {
		ep.user = u.User.Username()
		ep.pass, _ = u.User.Password()
	}
	base := *u
	base.User = nil
	base.RawQuery = ""
	base.Fragment = ""
	ep.BaseURL = strings.TrimRight(base.String(), "/")
	return ep, nil
}

// ClientOptions configures the transfer client.
type ClientOptions struct {
	Timeout     time.Duration // HTTP client timeout (default 60s)
	MaxAttempts int           // attempts per request (default 1, no retries)
	UserAgent   string        // User-Agent and agent capability (default DefaultUserAgent)
	Progress    func(string)  // receives side-band progress messages
	HTTPClient  *http.Client  // overrides the default client; Timeout is ignored
}

// Response limits per endpoint type. A larger response is an error, never
// silently truncated.
var (
	responseLimitRefs int64 = 8 << 20 // 8MB
	responseLimitPack int64 = 2 << 30 // 2GB
)

// Client speaks the read side of Git's smart-HTTP protocol.
type Client struct {
	endpoint    Endpoint
	httpClient  *http.Client
	token       string
	user        string
	pass        string
	maxAttempts int
	userAgent   string
	progress    func(string)
}

// NewClient creates a transfer client for remoteURL.
//
// Auth resolution order:
// 1) GITLITE_TOKEN (Bearer)
// 2) GITLITE_USERNAME + GITLITE_PASSWORD (Basic)
// 3) URL userinfo (Basic)
func NewClient(remoteURL string, opts ClientOptions) (*Client, error) {
	endpoint, err := ParseEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	token := strings.TrimSpace(os.Getenv("GITLITE_TOKEN"))
	user := strings.TrimSpace(os.Getenv("GITLITE_USERNAME"))
	pass := os.Getenv("GITLITE_PASSWORD")
	if token == "" && user == "" && endpoint.user != "" {
		user = endpoint.user
		pass = endpoint.pass
	}

	return &Client{
		endpoint:    endpoint,
		httpClient:  httpClient,
		token:       token,
		user:        user,
		pass:        pass,
		maxAttempts: opts.MaxAttempts,
		userAgent:   opts.UserAgent,
		progress:    opts.Progress,
	}, nil
}

// Endpoint returns the parsed endpoint.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// DiscoverRefs fetches and parses the upload-pack ref advertisement.
func (c *Client) DiscoverRefs(ctx context.Context) (*RefAdvertisement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint.BaseURL+"/info/refs?service="+UploadPackService, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.doWithLimit(ctx, req, responseLimitRefs, advertisementContentType)
	if err != nil {
		return nil, err
	}
	adv, err := ParseRefAdvertisement(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("discover refs at %s: %w", c.endpoint.BaseURL, err)
	}
	return adv, nil
}

// FetchPack asks the server for a pack containing wants and everything
// reachable from them, and returns the raw pack stream starting at its header.
func (c *Client) FetchPack(ctx context.Context, wants []object.Hash) ([]byte, error) {
	if len(wants) == 0 {
		return nil, fmt.Errorf("fetch pack: at least one want is required")
	}
	payload := FormatFetchRequest(wants, c.userAgent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint.BaseURL+"/"+UploadPackService, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", uploadPackRequestType)
	req.Header.Set("Accept", uploadPackResultType)
	req.Header.Set(headerGitProtocol, protocolV2)

	body, err := c.doWithLimit(ctx, req, responseLimitPack, uploadPackResultType)
	if err != nil {
		return nil, err
	}
	pack, err := ReadPackResponse(bytes.NewReader(body), c.progress)
	if err != nil {
		return nil, fmt.Errorf("fetch pack from %s: %w", c.endpoint.BaseURL, err)
	}
	return pack, nil
}

// StatusError is an unexpected HTTP response status.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote request failed (%s %s): %d %s", e.Method, e.Path, e.Code, e.Message)
}

func (c *Client) doWithLimit(ctx context.Context, req *http.Request, maxBytes int64, expectedContentType string) ([]byte, error) {
	c.applyHeaders(req)
	resp, err := retryDo(ctx, c.httpClient, req, c.maxAttempts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rc, err := responseBody(resp)
	if err != nil {
		return nil, &object.ProtocolError{Reason: req.URL.Path, Err: err}
	}
	defer rc.Close()

	body, readErr := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if readErr != nil {
		return nil, readErr
	}
	overLimit := int64(len(body)) > maxBytes
	if overLimit {
		body = body[:maxBytes]
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &object.ProtocolError{
			Reason: "unexpected HTTP status",
			Err:    &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Message: msg},
		}
	}

	if overLimit {
		return nil, &object.ProtocolError{Reason: fmt.Sprintf("%s %s: response exceeds %d bytes", req.Method, req.URL.Path, maxBytes)}
	}

	// A dumb-HTTP server answers info/refs with text/plain; only smart
	// responses are understood.
	if expectedContentType != "" {
		ct := resp.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(ct, expectedContentType) {
			return nil, &object.ProtocolError{Reason: fmt.Sprintf("unexpected content type %q (expected %s) from %s %s",
				ct, expectedContentType, req.Method, req.URL.Path)}
		}
	}

	return body, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)

	if strings.TrimSpace(c.token) != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}
	if strings.TrimSpace(c.user) != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}
