package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

var (
	// can be overridden for testing
	retryMinWaitDuration        = 1 * time.Second
	retryMaxAttempts     uint64 = 3
	retryFunc                   = retry.NewFibonacci
)

// ArtifactClientConfig configures an ArtifactClient.
type ArtifactClientConfig struct {
	Token     string
	BaseURL   string // defaults to https://api.github.com/
	UserAgent string
	Timeout   time.Duration
}

// ArtifactClient lists and downloads workflow run artifacts through the
// GitHub REST API.
type ArtifactClient struct {
	client  *github.Client
	timeout time.Duration
}

// NewArtifactClient creates a client authenticating with a bearer token.
// The token is attached only to requests for the API host, so it is never
// forwarded to the storage host the archive download redirects to.
func NewArtifactClient(cfg ArtifactClientConfig) (*ArtifactClient, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	base := "https://api.github.com/"
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API url: %w", err)
	}
	if baseURL.Path == "" || baseURL.Path[len(baseURL.Path)-1] != '/' {
		baseURL.Path += "/"
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := &http.Client{
		Transport: &hostScopedTransport{
			host:   baseURL.Host,
			authed: &oauth2.Transport{Source: tokenSource, Base: http.DefaultTransport},
			plain:  http.DefaultTransport,
		},
	}

	client := github.NewClient(httpClient)
	client.BaseURL = baseURL
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}

	return &ArtifactClient{client: client, timeout: cfg.Timeout}, nil
}

// hostScopedTransport sends requests for host through authed and everything
// else through plain.
type hostScopedTransport struct {
	host   string
	authed http.RoundTripper
	plain  http.RoundTripper
}

func (t *hostScopedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == t.host {
		return t.authed.RoundTrip(req)
	}
	return t.plain.RoundTrip(req)
}

// ListArtifacts fetches the artifact list at artifactsURL, retrying on
// server errors and rate limiting.
func (c *ArtifactClient) ListArtifacts(ctx context.Context, artifactsURL string) ([]*github.Artifact, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	backoff := retryFunc(retryMinWaitDuration)
	backoff = retry.WithMaxRetries(retryMaxAttempts, backoff)

	list, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*github.ArtifactList, error) {
		req, err := c.client.NewRequest(http.MethodGet, artifactsURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		var list github.ArtifactList
		resp, err := c.client.Do(ctx, req, &list)
		if err != nil {
			return nil, convertRetryable(resp, err)
		}
		return &list, nil
	})
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("failed to list artifacts: %w", err))
	}

	return list.Artifacts, nil
}

// DownloadArtifact streams the archive at downloadURL into w.
func (c *ArtifactClient) DownloadArtifact(ctx context.Context, downloadURL string, w io.Writer) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.client.NewRequest(http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	if _, err := c.client.Do(ctx, req, w); err != nil {
		return classify(ctx, fmt.Errorf("failed to download artifact: %w", err))
	}
	return nil
}

func (c *ArtifactClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func convertRetryable(resp *github.Response, err error) error {
	if resp == nil || resp.Response == nil {
		return err
	}
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return retry.RetryableError(err)
	}
	return err
}

// classify marks err as a timeout if the call's deadline passed.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
