// Package network implements the HTTP side of the media upload protocol:
// the transport consumed by leafstream sessions, plus downloads of finalized
// files and optional S3 mirroring.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/medialib-io/go-mediautils/upload/leafstream"
)

const leafContentType = "application/octet-stream"
const contentHashHeader = "x-content-hash"

type negotiateRequest struct {
	QuickID string `json:"quick_id"`
	Bytes   int64  `json:"bytes"`
}

type manifestResponse struct {
	Leaves   []string `json:"leaves"`
	LeafSize int64    `json:"leaf_size"`
}

type finalizeRequest struct {
	Leaves []string `json:"leaves"`
	Name   string   `json:"name"`
	Mime   string   `json:"mime"`
}

// APIClient implements leafstream.Transport against the upload server's
// REST API. Every call performs a single request attempt: the session state
// machine owns the retry policy.
type APIClient struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger

	// IsFailureStatus decides which response statuses surface as a
	// StatusError. The upload server's success contract varies between
	// deployments; the default treats any status >= 400 as failure.
	IsFailureStatus func(status int) bool
}

// NewAPIClient wraps the given retryable HTTP client. The client's built-in
// retries are disabled; failed responses are passed through so the session
// can branch on the status code. baseURL is normalized to end in "/".
func NewAPIClient(client *retryablehttp.Client, baseURL string, accessToken string, logger log.Logger) *APIClient {
	// Single attempt per call: failed responses are handed back untouched so
	// the session can branch on the status code.
	client.RetryMax = 0
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return false, nil
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &APIClient{
		httpClient:  client,
		baseURL:     baseURL,
		accessToken: accessToken,
		logger:      logger,
		IsFailureStatus: func(status int) bool {
			return status >= http.StatusBadRequest
		},
	}
}

// Negotiate starts or resumes the session identified by quickID and returns
// the server's leaf manifest.
func (c *APIClient) Negotiate(ctx context.Context, quickID string, size int64) (leafstream.Manifest, error) {
	body, err := json.Marshal(negotiateRequest{QuickID: quickID, Bytes: size})
	if err != nil {
		return leafstream.Manifest{}, err
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.url(quickID), body)
	if err != nil {
		return leafstream.Manifest{}, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-type", "application/json")
	c.setAuthorization(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return leafstream.Manifest{}, fmt.Errorf("negotiate: %w", err)
	}
	defer c.closeBody(resp.Body)

	if c.IsFailureStatus(resp.StatusCode) {
		return leafstream.Manifest{}, statusError(resp)
	}

	var response manifestResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return leafstream.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}

	return leafstream.Manifest{Leaves: response.Leaves, LeafSize: response.LeafSize}, nil
}

// UploadLeaf PUTs one leaf's raw bytes, carrying its content hash in a
// header so the server can verify the transfer.
func (c *APIClient) UploadLeaf(ctx context.Context, quickID string, index int, data []byte, hash string) error {
	req, err := retryablehttp.NewRequest(http.MethodPut, c.leafURL(quickID, index), data)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-type", leafContentType)
	req.Header.Set(contentHashHeader, hash)
	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.ContentLength = int64(len(data))
	c.setAuthorization(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload leaf %d: %w", index, err)
	}
	defer c.closeBody(resp.Body)

	if c.IsFailureStatus(resp.StatusCode) {
		return statusError(resp)
	}

	return nil
}

// Finalize POSTs the complete leaf hash list with the file metadata; a
// success status means the server assembled and stored the file.
func (c *APIClient) Finalize(ctx context.Context, quickID string, leaves []string, name, mime string) error {
	body, err := json.Marshal(finalizeRequest{Leaves: leaves, Name: name, Mime: mime})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.url(quickID), body)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-type", "application/json")
	c.setAuthorization(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	defer c.closeBody(resp.Body)

	if c.IsFailureStatus(resp.StatusCode) {
		return statusError(resp)
	}

	return nil
}

// url returns the session endpoint: the base URL itself when id is empty,
// the base URL plus the id otherwise.
func (c *APIClient) url(id string) string {
	if id == "" {
		return c.baseURL
	}
	return c.baseURL + id
}

// leafURL returns the endpoint for one leaf of a session.
func (c *APIClient) leafURL(id string, index int) string {
	if id == "" {
		return c.baseURL
	}
	return c.baseURL + id + "/" + strconv.Itoa(index)
}

func (c *APIClient) setAuthorization(req *retryablehttp.Request) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	}
}

func (c *APIClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func statusError(resp *http.Response) error {
	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return &leafstream.StatusError{StatusCode: resp.StatusCode}
	}
	return &leafstream.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
