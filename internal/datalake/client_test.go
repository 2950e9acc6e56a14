package datalake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

// failingToken is a test TokenSource that always returns an error.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token error")
}

// newTestClient creates a Client pointing at the given httptest server
// with instant retry sleeps for fast tests.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c := NewClient(url, http.DefaultClient, staticToken("test-token"), slog.Default(), "test-agent")
	c.sleepFunc = noopSleep

	return c
}

func TestAccountURL(t *testing.T) {
	assert.Equal(t, "https://myaccount.azuredatalakestore.net", AccountURL("myaccount", "azuredatalakestore.net"))
}

func TestDo_SendsAuthAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "/webhdfs/v1/data/in%20put/a.csv", r.URL.EscapedPath())
		assert.Equal(t, "GETFILESTATUS", r.URL.Query().Get("op"))
		assert.Equal(t, apiVersion, r.URL.Query().Get("api-version"))

		_, _ = w.Write([]byte(`{"FileStatus":{"type":"FILE","length":3}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	st, err := client.GetFileStatus(context.Background(), "/data/in put/a.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Length)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("x-ms-request-id", "test-req-id")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"something"}`))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			_, err := client.GetFileStatus(context.Background(), "/x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var remoteErr *RemoteError
			require.ErrorAs(t, err, &remoteErr)
			assert.Equal(t, tt.status, remoteErr.StatusCode)
			assert.Equal(t, "test-req-id", remoteErr.RequestID)
		})
	}
}

func TestDo_RemoteExceptionClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"RemoteException":{"exception":"FileAlreadyExistsException",` +
			`"message":"file exists","javaClassName":"org.apache.hadoop.fs.FileAlreadyExistsException"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.Create(context.Background(), "/a", []byte("x"), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Contains(t, err.Error(), "FileAlreadyExistsException: file exists")
}

func TestDo_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body), "body is resent on every attempt")

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.Append(context.Background(), "/a", []byte("payload"), 0))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetFileStatus(context.Background(), "/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestDo_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetFileStatus(context.Background(), "/a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_TokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, failingToken{}, nil, "")
	client.sleepFunc = noopSleep

	_, err := client.GetFileStatus(context.Background(), "/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token error")
}

func TestDo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL)
	_, err := client.GetFileStatus(ctx, "/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryBackoff_RetryAfter(t *testing.T) {
	c := NewClient("http://x", nil, staticToken("t"), nil, "")

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"7"}}}
	assert.Equal(t, 7*time.Second, c.retryBackoff(resp, 0))
}

func TestCalcBackoff_Bounds(t *testing.T) {
	c := NewClient("http://x", nil, staticToken("t"), nil, "")

	for attempt := range 10 {
		d := c.calcBackoff(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	}
}

func TestEncodePath(t *testing.T) {
	assert.Equal(t, "/", encodePath("/"))
	assert.Equal(t, "/a/b", encodePath("a/b"))
	assert.Equal(t, "/a%23b/c%3Fd", encodePath("/a#b/c?d"))
	// Decomposed "é" is composed before escaping.
	assert.Equal(t, encodePath("/caf\u00e9"), encodePath("/cafe\u0301"))
}
