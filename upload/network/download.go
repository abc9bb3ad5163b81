package network

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"
)

// DownloadParams ...
type DownloadParams struct {
	APIBaseURL   string
	Token        string
	FileID       string
	DownloadPath string
}

// Download fetches a finalized media file by its ID into DownloadPath.
func Download(ctx context.Context, params DownloadParams, logger log.Logger) error {
	if params.APIBaseURL == "" {
		return fmt.Errorf("API base URL is empty")
	}

	if params.FileID == "" {
		return fmt.Errorf("file ID is empty")
	}

	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.CheckRetry = createCustomRetryFunction(logger)

	baseURL := params.APIBaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	logger.Debugf("Download media file %s", params.FileID)
	err := downloadFile(ctx, retryableHTTPClient.StandardClient(), baseURL+params.FileID, params.DownloadPath, params.Token)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}

	return nil
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
		retry, err := customRetryFunction(ctx, resp, downloadErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; downloadErr=%+v", retry, err, downloadErr)
		return retry, err
	}
}

// Ranged downloads surface size mismatches and connection drops as plain
// errors, so any transport error is worth another attempt.
func customRetryFunction(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
	if downloadErr != nil {
		return true, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, downloadErr)
}

func downloadFile(ctx context.Context, client *http.Client, url string, dest string, token string) error {
	downloader := got.New()
	downloader.Client = client

	download := got.NewDownload(ctx, url, dest)
	if token != "" {
		download.Header = append(download.Header, got.GotHeader{
			Key:   "Authorization",
			Value: fmt.Sprintf("Bearer %s", token),
		})
	}

	return downloader.Do(download)
}
