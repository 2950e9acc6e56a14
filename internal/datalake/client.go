package datalake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// apiVersion is sent with every WebHDFS request.
const apiVersion = "2018-09-01"

// webhdfsPrefix is the REST root on every account endpoint.
const webhdfsPrefix = "/webhdfs/v1"

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per Go
// convention "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for one Data Lake Store account. It handles
// request construction, authentication, retry with exponential backoff,
// and error classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string

	// listPageSize caps the entries per LISTSTATUS page. Tests lower it.
	listPageSize int

	// sleepFunc is called to wait between retries. Tests override it to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// AccountURL returns the base URL of an account, e.g.
// "https://myaccount.azuredatalakestore.net".
func AccountURL(account, endpointSuffix string) string {
	return "https://" + account + "." + endpointSuffix
}

// NewClient creates a Data Lake Store client. baseURL is the account root
// as returned by AccountURL.
func NewClient(
	baseURL string,
	httpClient *http.Client,
	token TokenSource,
	logger *slog.Logger,
	userAgent string,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		sleepFunc:  timeSleep,

		listPageSize: defaultListPageSize,
	}
}

// request describes one WebHDFS call.
type request struct {
	method      string
	path        string
	op          string
	params      url.Values
	body        []byte
	contentType string

	// retried is set by do once the request has been sent more than once.
	retried bool
}

// requestURL builds the full URL for r. The remote path is NFC-normalized
// and escaped per segment.
func (c *Client) requestURL(r *request) string {
	q := url.Values{}
	maps.Copy(q, r.params)

	q.Set("op", r.op)
	q.Set("api-version", apiVersion)

	return c.baseURL + webhdfsPrefix + encodePath(r.path) + "?" + q.Encode()
}

// encodePath URL-encodes each segment of a slash-separated remote path and
// guarantees a leading slash.
func encodePath(p string) string {
	p = norm.NFC.String(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// do executes a WebHDFS request with retry. The body is a byte slice so
// that every attempt can resend it. The caller is responsible for closing
// the response body on success.
func (c *Client) do(ctx context.Context, r *request) (*http.Response, error) {
	target := c.requestURL(r)

	var attempt int
	for {
		r.retried = attempt > 0

		resp, err := c.doOnce(ctx, r, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("datalake: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("op", r.op),
					slog.String("path", r.path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("datalake: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("datalake: %s %s failed after %d retries: %w", r.op, r.path, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("op", r.op),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("op", r.op),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("datalake: request canceled: %w", err)
			}

			attempt++

			continue
		}

		remoteErr := newRemoteError(resp.StatusCode, resp.Header.Get("x-ms-request-id"), errBody)

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("op", r.op),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, remoteErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, r *request, target string) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if r.body != nil {
		contentType := r.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
