package datalake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Entry types reported by GETFILESTATUS and LISTSTATUS.
const (
	TypeFile      = "FILE"
	TypeDirectory = "DIRECTORY"
)

// FileStatus describes one file or directory.
type FileStatus struct {
	PathSuffix       string `json:"pathSuffix"`
	Type             string `json:"type"`
	Length           int64  `json:"length"`
	ModificationTime int64  `json:"modificationTime"` // milliseconds since epoch
	Permission       string `json:"permission"`
}

// IsDir reports whether the entry is a directory.
func (s *FileStatus) IsDir() bool {
	return s.Type == TypeDirectory
}

// ModTime returns the modification time.
func (s *FileStatus) ModTime() time.Time {
	return time.UnixMilli(s.ModificationTime)
}

type fileStatusResponse struct {
	FileStatus FileStatus `json:"FileStatus"`
}

type listStatusResponse struct {
	FileStatuses struct {
		FileStatus []FileStatus `json:"FileStatus"`
	} `json:"FileStatuses"`
}

type booleanResponse struct {
	Boolean bool `json:"boolean"`
}

// GetFileStatus returns the status of a remote path. Returns an error
// wrapping ErrNotFound when the path does not exist.
func (c *Client) GetFileStatus(ctx context.Context, remotePath string) (*FileStatus, error) {
	var out fileStatusResponse
	if err := c.doJSON(ctx, &request{method: http.MethodGet, path: remotePath, op: "GETFILESTATUS"}, &out); err != nil {
		return nil, err
	}

	return &out.FileStatus, nil
}

// defaultListPageSize is the number of entries requested per LISTSTATUS page.
const defaultListPageSize = 4000

// ListStatus returns the direct children of a remote directory. Large
// directories are read page by page, each page starting after the last
// entry of the previous one, until a short page ends the listing.
func (c *Client) ListStatus(ctx context.Context, remotePath string) ([]FileStatus, error) {
	var entries []FileStatus

	after := ""

	for {
		params := url.Values{}
		params.Set("listSize", strconv.Itoa(c.listPageSize))

		if after != "" {
			params.Set("listAfter", after)
		}

		var out listStatusResponse
		if err := c.doJSON(ctx, &request{method: http.MethodGet, path: remotePath, op: "LISTSTATUS", params: params}, &out); err != nil {
			return nil, err
		}

		page := out.FileStatuses.FileStatus
		entries = append(entries, page...)

		if len(page) < c.listPageSize {
			break
		}

		after = page[len(page)-1].PathSuffix
	}

	c.logger.Debug("listed directory",
		slog.String("path", remotePath),
		slog.Int("entries", len(entries)),
	)

	return entries, nil
}

// Mkdirs creates a remote directory and any missing parents.
func (c *Client) Mkdirs(ctx context.Context, remotePath string) error {
	var out booleanResponse
	if err := c.doJSON(ctx, &request{method: http.MethodPut, path: remotePath, op: "MKDIRS"}, &out); err != nil {
		return err
	}

	if !out.Boolean {
		return fmt.Errorf("datalake: MKDIRS %s returned false", remotePath)
	}

	return nil
}

// Create creates a file with the given initial content. Without overwrite
// an existing file fails with ErrAlreadyExists.
func (c *Client) Create(ctx context.Context, remotePath string, data []byte, overwrite bool) error {
	if data == nil {
		data = []byte{}
	}

	params := url.Values{}
	params.Set("overwrite", strconv.FormatBool(overwrite))
	params.Set("write", "true")

	return c.doDiscard(ctx, &request{
		method: http.MethodPut,
		path:   remotePath,
		op:     "CREATE",
		params: params,
		body:   data,
	})
}

// Append writes data at offset, which must equal the current file length.
// When a retried append fails, the file length decides: a file that already
// ends at offset+len(data) means an earlier attempt was applied and its
// response lost.
func (c *Client) Append(ctx context.Context, remotePath string, data []byte, offset int64) error {
	params := url.Values{}
	params.Set("append", "true")
	params.Set("offset", strconv.FormatInt(offset, 10))

	r := &request{
		method: http.MethodPost,
		path:   remotePath,
		op:     "APPEND",
		params: params,
		body:   data,
	}

	err := c.doDiscard(ctx, r)
	if err == nil || !r.retried || ctx.Err() != nil {
		return err
	}

	want := offset + int64(len(data))

	st, statErr := c.GetFileStatus(ctx, remotePath)
	if statErr != nil || st.Length != want {
		return err
	}

	c.logger.Warn("append already applied by an earlier attempt",
		slog.String("path", remotePath),
		slog.Int64("offset", offset),
		slog.Int64("length", want),
	)

	return nil
}

// Open returns a reader for length bytes starting at offset. The caller
// must close the reader. Only the request is retried; a failure while
// streaming is returned from Read.
func (c *Client) Open(ctx context.Context, remotePath string, offset, length int64) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("read", "true")
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("length", strconv.FormatInt(length, 10))

	resp, err := c.do(ctx, &request{method: http.MethodGet, path: remotePath, op: "OPEN", params: params})
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Concat joins sources, in order, into target and deletes the directory
// holding the sources.
func (c *Client) Concat(ctx context.Context, target string, sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("datalake: concat %s: no sources", target)
	}

	params := url.Values{}
	params.Set("deleteSourceDirectory", "true")

	body := "sources=" + strings.Join(sources, ",")

	c.logger.Info("concatenating segments",
		slog.String("target", target),
		slog.Int("segments", len(sources)),
	)

	r := &request{
		method:      http.MethodPost,
		path:        target,
		op:          "MSCONCAT",
		params:      params,
		body:        []byte(body),
		contentType: "text/plain",
	}

	err := c.doDiscard(ctx, r)
	if err == nil || !r.retried || ctx.Err() != nil {
		return err
	}

	if !c.concatApplied(ctx, target, sources) {
		return err
	}

	c.logger.Warn("concat already applied by an earlier attempt", slog.String("target", target))

	return nil
}

// concatApplied reports whether target exists as a file while the first
// source is gone, which is the state a completed MSCONCAT leaves behind.
func (c *Client) concatApplied(ctx context.Context, target string, sources []string) bool {
	st, err := c.GetFileStatus(ctx, target)
	if err != nil || st.IsDir() {
		return false
	}

	_, err = c.GetFileStatus(ctx, sources[0])

	return errors.Is(err, ErrNotFound)
}

// Delete removes a remote path. Directories need recursive set unless
// empty. A missing path reports false without error.
func (c *Client) Delete(ctx context.Context, remotePath string, recursive bool) (bool, error) {
	params := url.Values{}
	params.Set("recursive", strconv.FormatBool(recursive))

	var out booleanResponse
	if err := c.doJSON(ctx, &request{method: http.MethodDelete, path: remotePath, op: "DELETE", params: params}, &out); err != nil {
		return false, err
	}

	return out.Boolean, nil
}

// doJSON executes r and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, r *request, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("datalake: decoding %s response for %s: %w", r.op, r.path, err)
	}

	return nil
}

// doDiscard executes r and drains the response body.
func (c *Client) doDiscard(ctx context.Context, r *request) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("datalake: reading %s response for %s: %w", r.op, r.path, err)
	}

	return nil
}
