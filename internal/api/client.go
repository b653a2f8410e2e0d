// Package api implements the control-plane client: the archive/upload
// resource lifecycle over signed, retried HTTPS calls.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coldstash/internal/retry"
)

const userAgent = "coldstash-desktop/0.1.0"

// Credentials authenticate every control-plane request: an API key id
// plus the per-client secret the signatures are computed with.
type Credentials struct {
	KeyID  string
	Secret string
}

// Client talks to the archive control plane. It is safe for concurrent
// use; every method signs its request and applies the retry policy it
// is given.
type Client struct {
	base  *url.URL
	creds Credentials
	httpc *http.Client
	now   func() time.Time
}

// New builds a client for the given endpoint, e.g.
// "https://api.example.com/api/v1".
func New(endpoint string, creds Credentials) (*Client, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("endpoint %q must be an absolute URL", endpoint)
	}
	return &Client{
		base:  base,
		creds: creds,
		httpc: &http.Client{},
		now:   time.Now,
	}, nil
}

// Host returns the endpoint host, used to filter persisted records
// written against other deployments.
func (c *Client) Host() string { return c.base.Host }

// GetUser fetches the authenticated account. Used to validate
// credentials at login.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "GetUser", http.MethodGet, c.rel("/user/"), nil, &user, retry.Fast); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateArchive registers a new archive of the given total size.
func (c *Client) CreateArchive(ctx context.Context, size int64, title string) (*Archive, error) {
	var archive Archive
	body := archivePostData{Size: size, Title: title}
	if err := c.call(ctx, "CreateArchive", http.MethodPost, c.rel("/archives/"), body, &archive, retry.Fast); err != nil {
		return nil, err
	}
	return &archive, nil
}

// CreateUpload creates the upload resource for an archive, returning
// the storage session the client transfers bytes with.
func (c *Client) CreateUpload(ctx context.Context, archive *Archive) (*Upload, error) {
	var upload Upload
	if err := c.call(ctx, "CreateUpload", http.MethodPost, archive.UploadURL, nil, &upload, retry.Fast); err != nil {
		return nil, err
	}
	return &upload, nil
}

// GetUpload re-fetches an upload resource. Used for completion polling
// and storage-session renewal; idempotent, so callers may pass
// retry.Poll.
func (c *Client) GetUpload(ctx context.Context, uploadURL string, policy retry.Policy) (*Upload, error) {
	var upload Upload
	if err := c.call(ctx, "GetUpload", http.MethodGet, uploadURL, nil, &upload, policy); err != nil {
		return nil, err
	}
	return &upload, nil
}

// PatchUploaded tells the server the client has finished sending
// bytes. The server moves the upload to "uploaded" and finalizes it
// asynchronously.
func (c *Client) PatchUploaded(ctx context.Context, uploadURL string) (*Upload, error) {
	var upload Upload
	body := statusPatchData{Status: "uploaded"}
	if err := c.call(ctx, "PatchUploaded", http.MethodPatch, uploadURL, body, &upload, retry.Long); err != nil {
		return nil, err
	}
	return &upload, nil
}

// DeleteUpload removes the remote upload resource.
func (c *Client) DeleteUpload(ctx context.Context, uploadURL string) error {
	return c.call(ctx, "DeleteUpload", http.MethodDelete, uploadURL, nil, nil, retry.Fast)
}

// ListUploads returns all upload resources for this account.
func (c *Client) ListUploads(ctx context.Context) ([]Upload, error) {
	var page listPage[Upload]
	if err := c.call(ctx, "ListUploads", http.MethodGet, c.rel("/uploads/"), nil, &page, retry.Fast); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// rel resolves a path relative to the configured endpoint.
func (c *Client) rel(path string) string {
	return c.base.JoinPath(path).String()
}

// call signs and sends one request under the given retry policy,
// decoding a JSON response into out when out is non-nil.
func (c *Client) call(ctx context.Context, op, method, rawurl string, body any, out any, policy retry.Policy) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
	}

	return policy.Do(ctx, op, IsRetryable, func() error {
		return c.once(ctx, op, method, rawurl, payload, out)
	})
}

func (c *Client) once(ctx context.Context, op, method, rawurl string, payload []byte, out any) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return fmt.Errorf("%s: invalid url %q: %w", op, rawurl, err)
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}

	date := c.now()
	signPath := u.RequestURI()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Date", date.UTC().Format(http.TimeFormat))
	req.Header.Set(apiKeyHeader, c.creds.KeyID)
	req.Header.Set("Authorization", authorizationHeader(c.creds.Secret, method, signPath, u.Host, date))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(op, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

// errorFromResponse converts a non-2xx response into a typed Error,
// picking up the server's code/message body when it sent one.
func (c *Client) errorFromResponse(op string, resp *http.Response) error {
	apiErr := &Error{Op: op, Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err == nil && len(data) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Code = body.Code
			if body.Message != "" {
				apiErr.Message = body.Message
			} else {
				apiErr.Message = body.Detail
			}
		}
	}
	return apiErr
}
