package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldstash/internal/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/api/v1", Credentials{KeyID: "key-1", Secret: "s3cret"})
	require.NoError(t, err)
	return c, srv
}

func TestCanonicalString(t *testing.T) {
	date := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	got := canonicalString(http.MethodPost, "/api/v1/archives/", "api.example.com", date)

	want := "(request-line): post /api/v1/archives/\n" +
		"host: api.example.com\n" +
		"accept: application/vnd.coldstash+json\n" +
		"date: Sun, 01 Jun 2025 12:30:00 GMT"
	assert.Equal(t, want, got)
}

func TestSignDeterministic(t *testing.T) {
	msg := "(request-line): get /api/v1/user/\nhost: h\naccept: a\ndate: d"
	assert.Equal(t, sign("secret", msg), sign("secret", msg))
	assert.NotEqual(t, sign("secret", msg), sign("other", msg))
}

func TestClientSignsRequests(t *testing.T) {
	var got *http.Request
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 1, "email": "u@example.com"}`))
	}))

	_, err := c.GetUser(context.Background())
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "key-1", got.Header.Get("X-Archive-Api-Key"))
	assert.Equal(t, acceptHeader, got.Header.Get("Accept"))
	assert.NotEmpty(t, got.Header.Get("Date"))
	auth := got.Header.Get("Authorization")
	assert.Contains(t, auth, `Signature keyId="hmac-key-1"`)
	assert.Contains(t, auth, `algorithm="hmac-sha256"`)
	assert.Contains(t, auth, `signature="`)
}

func TestClientRetriesServerFaults(t *testing.T) {
	calls := 0
	var c *Client
	var srv *httptest.Server
	c, srv = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url": "` + srv.URL + `/api/v1/uploads/1/", "status": "pending"}`))
	}))

	upload, err := c.GetUpload(context.Background(), srv.URL+"/api/v1/uploads/1/", testPolicy())
	require.NoError(t, err)
	assert.Equal(t, "pending", upload.Status)
	assert.Equal(t, 3, calls)
}

func TestClientDoesNotRetryClientFaults(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code": "invalid_signature", "message": "signature mismatch"}`))
	}))

	_, err := c.GetUpload(context.Background(), srv.URL+"/api/v1/uploads/1/", testPolicy())
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "invalid_signature", apiErr.Code)
	assert.True(t, IsClientFault(err))
	assert.False(t, IsRetryable(err))
}

func TestClientNotFound(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	err := c.DeleteUpload(context.Background(), srv.URL+"/api/v1/uploads/9/")
	assert.True(t, IsNotFound(err))
}

func TestCreateArchiveAndUpload(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("POST /api/v1/archives/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"url": "` + srvURL + `/api/v1/archives/a1/",
			"key": "a1", "size": 42, "title": "photos",
			"upload_url": "` + srvURL + `/api/v1/archives/a1/upload/"
		}`))
	})
	mux.HandleFunc("POST /api/v1/archives/a1/upload/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"url": "` + srvURL + `/api/v1/uploads/u1/",
			"status": "pending",
			"s3": {
				"bucket": "coldstash-prod",
				"prefix": "upload/u1/",
				"token_access_key": "AKIA",
				"token_secret_key": "shh",
				"token_session": "sess",
				"token_expiration": "2025-06-01T13:00:00Z"
			}
		}`))
	})

	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	archive, err := c.CreateArchive(context.Background(), 42, "photos")
	require.NoError(t, err)
	assert.Equal(t, int64(42), archive.Size)

	upload, err := c.CreateUpload(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, "pending", upload.Status)
	assert.Equal(t, "coldstash-prod", upload.S3.Bucket)
	assert.Equal(t, time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), upload.S3.TokenExpiration)
}
