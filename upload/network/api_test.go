package network

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialib-io/go-mediautils/upload/leafstream"
)

func newTestClient(t *testing.T, baseURL string) *APIClient {
	t.Helper()
	logger := log.NewLogger()
	return NewAPIClient(retryhttp.NewClient(logger), baseURL, "test-token", logger)
}

func Test_urlConstruction(t *testing.T) {
	client := newTestClient(t, "https://example.com/files/")

	assert.Equal(t, "https://example.com/files/", client.url(""))
	assert.Equal(t, "https://example.com/files/ABC", client.url("ABC"))
	assert.Equal(t, "https://example.com/files/ABC/5", client.leafURL("ABC", 5))
	// an empty id is treated as absent even with a leaf index
	assert.Equal(t, "https://example.com/files/", client.leafURL("", 5))
}

func Test_urlConstruction_NormalizesBaseURL(t *testing.T) {
	client := newTestClient(t, "https://example.com/files")
	assert.Equal(t, "https://example.com/files/ABC", client.url("ABC"))
}

func TestNegotiate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/QUICKID", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "QUICKID", body["quick_id"])
		assert.Equal(t, float64(100), body["bytes"])

		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"leaves": [null, "LEAFHASH"], "leaf_size": 4}`))
		require.NoError(t, err)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	manifest, err := client.Negotiate(context.Background(), "QUICKID", 100)

	require.NoError(t, err)
	assert.Equal(t, int64(4), manifest.LeafSize)
	// null manifest entries decode to empty strings
	assert.Equal(t, []string{"", "LEAFHASH"}, manifest.Leaves)
}

func TestNegotiate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, err := w.Write([]byte("server exploded"))
		require.NoError(t, err)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Negotiate(context.Background(), "QUICKID", 100)

	require.Error(t, err)
	var statusErr *leafstream.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "server exploded")
}

func TestNegotiate_MalformedManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("{not json"))
		require.NoError(t, err)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Negotiate(context.Background(), "QUICKID", 100)

	require.Error(t, err)
	var statusErr *leafstream.StatusError
	// a malformed body is a plain retryable error, not a status failure
	assert.False(t, errors.As(err, &statusErr))
}

func TestUploadLeaf(t *testing.T) {
	leafBytes := []byte("leaf payload")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/QUICKID/3", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-type"))
		assert.Equal(t, "LEAFHASH", r.Header.Get("x-content-hash"))
		assert.Equal(t, int64(len(leafBytes)), r.ContentLength)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, leafBytes, body)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.UploadLeaf(context.Background(), "QUICKID", 3, leafBytes, "LEAFHASH")
	require.NoError(t, err)
}

func TestUploadLeaf_StatusBranching(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "session lost", status: http.StatusConflict},
		{name: "leaf corrupted", status: http.StatusPreconditionFailed},
		{name: "generic failure", status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			err := client.UploadLeaf(context.Background(), "QUICKID", 0, []byte("data"), "HASH")

			var statusErr *leafstream.StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
		})
	}
}

func TestUploadLeaf_SingleAttempt(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.UploadLeaf(context.Background(), "QUICKID", 0, []byte("data"), "HASH")

	require.Error(t, err)
	// the wrapped retryable client must not retry on its own
	assert.Equal(t, 1, requestCount)
}

func TestFinalize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/QUICKID", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []interface{}{"H0", "H1"}, body["leaves"])
		assert.Equal(t, "clip.mp4", body["name"])
		assert.Equal(t, "video/mp4", body["mime"])

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Finalize(context.Background(), "QUICKID", []string{"H0", "H1"}, "clip.mp4", "video/mp4")
	require.NoError(t, err)
}

func TestFinalize_FailureStatusOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	client.IsFailureStatus = func(status int) bool {
		return status != http.StatusCreated && status != http.StatusAccepted
	}

	err := client.Finalize(context.Background(), "QUICKID", []string{"H0"}, "f.bin", "application/octet-stream")

	var statusErr *leafstream.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusOK, statusErr.StatusCode)
}
